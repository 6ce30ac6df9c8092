// Package storage defines the memory store's file-system abstraction.
package storage

import "github.com/kernpunkt/llm-mem/internal/models"

// Provider is the interface for memory file operations. Every path is
// relative to the store root.
type Provider interface {
	// List returns path, size and mtime for every .md file under dir.
	// File contents are not read.
	List(dir string) ([]models.FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path, creating parent dirs.
	Write(path string, content []byte) error
	// Delete removes the file at path and prunes its parent dir if empty.
	Delete(path string) error
	// Exists reports whether a file is present at path.
	Exists(path string) (bool, error)
	// Root returns the absolute store directory.
	Root() string
}
