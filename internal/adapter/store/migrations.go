package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyFingerprint   = []byte("model_fingerprint")
)

// SchemaInfo stores the schema version and the embedding model the cached
// vectors were produced by.
type SchemaInfo struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		if data := b.Get(keySchemaVersion); data != nil {
			if err := json.Unmarshal(data, &info.Version); err != nil {
				info.Version = 0
			}
		}
		if data := b.Get(keyFingerprint); data != nil {
			info.Fingerprint = string(data)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keyFingerprint, []byte(info.Fingerprint))
	})
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsRebuild bool
	OldVersion   int
	NewVersion   int
	Reason       string
}

// CheckMigration decides whether cached vectors can be reused with the
// given model fingerprint. Vectors from another model must never be mixed
// into an index, so any mismatch requires a rebuild.
func (s *BoltStore) CheckMigration(fingerprint string) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		// fresh database, nothing to invalidate
	case info.Version != CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("cache schema v%d does not match v%d", info.Version, CurrentSchemaVersion)
	case info.Fingerprint != fingerprint:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding source changed from %q to %q", info.Fingerprint, fingerprint)
	}

	return result, nil
}

// Prepare runs CheckMigration, clears stale vectors when needed and records
// the fingerprint. It returns the check result for reporting.
func (s *BoltStore) Prepare(fingerprint string) (*MigrationResult, error) {
	result, err := s.CheckMigration(fingerprint)
	if err != nil {
		return nil, err
	}
	if result.NeedsRebuild {
		if err := s.Clear(); err != nil {
			return nil, fmt.Errorf("failed to clear stale embeddings: %w", err)
		}
	}
	if err := s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion, Fingerprint: fingerprint}); err != nil {
		return nil, err
	}
	return result, nil
}

// Clear removes every cached vector.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEmbeddings); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketEmbeddings)
		return err
	})
}
