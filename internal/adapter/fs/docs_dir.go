package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Upload is one file received from the upload collaborator.
type Upload struct {
	Name string
	Body io.Reader
}

// NameError reports an upload whose file name cannot be stored.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("%s file name %q", e.Reason, e.Name)
}

// ReplaceDocuments makes dir contain exactly the uploaded files. New files
// are written to a staging directory first, so a failed write leaves the
// previous document set untouched.
func ReplaceDocuments(dir string, uploads []Upload) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents dir: %w", err)
	}

	staging, err := os.MkdirTemp(filepath.Dir(filepath.Clean(dir)), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	names := make([]string, 0, len(uploads))
	seen := make(map[string]bool)
	for _, u := range uploads {
		name, err := SafeName(u.Name)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, &NameError{Name: name, Reason: "duplicate"}
		}
		seen[name] = true

		if err := writeFile(filepath.Join(staging, name), u.Body); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", name, err)
		}
		names = append(names, name)
	}

	if err := clearFiles(dir); err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("failed to move %s into place: %w", name, err)
		}
	}

	return names, nil
}

// SafeName reduces an uploaded file name to its base name.
func SafeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." || strings.HasPrefix(base, ".") {
		return "", &NameError{Name: name, Reason: "invalid"}
	}
	return base, nil
}

func writeFile(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// clearFiles removes the regular files directly inside dir.
func clearFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list documents dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
