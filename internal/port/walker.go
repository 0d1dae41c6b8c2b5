package port

// FileInfo describes a file found under the documents directory.
type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}
