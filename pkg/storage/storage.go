// Package storage guards file destinations: it verifies the storage root is
// mounted and writable before a transfer is allowed to target it, so setup
// failures surface before any network traffic.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Checker probes the storage root for availability and per-destination
// writability
type Checker struct {
	root string
}

// NewChecker creates a checker rooted at dir, creating the root if needed
func NewChecker(dir string) (*Checker, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Checker{root: dir}, nil
}

// Root returns the storage root directory
func (c *Checker) Root() string {
	return c.root
}

// Resolve maps a request path onto the storage root. Absolute paths pass
// through unchanged.
func (c *Checker) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.root, path)
}

// Available verifies the storage root exists and accepts writes. The write
// probe catches read-only mounts that a stat alone would miss.
func (c *Checker) Available() error {
	info, err := os.Stat(c.root)
	if err != nil {
		return fmt.Errorf("storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", c.root)
	}
	return probeWrite(c.root)
}

// EnsureWritable verifies the destination's directory exists (creating it
// under the root if needed) and accepts writes
func (c *Checker) EnsureWritable(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	return probeWrite(dir)
}

func probeWrite(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("storage not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}
