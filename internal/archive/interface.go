// Package archive provides cold storage for finished backtest records.
package archive

import "context"

// Storage is a flat blob store keyed by slash-separated paths.
type Storage interface {
	// Write stores data at the given path, replacing any existing blob.
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves the blob at the given path.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the blob at the given path.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)
}

// RunPath is the canonical archive location for a backtest run record.
func RunPath(runID string) string {
	return "runs/" + runID + ".json"
}
