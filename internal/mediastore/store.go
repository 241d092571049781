// SPDX-License-Identifier: MIT

// Package mediastore is the fast-tier local object store. Objects are keyed
// by content hash in two-level sharded directories and written atomically,
// so a crashed transfer never leaves a half-written file behind.
package mediastore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// extByContentType maps the content types the durable tier serves to on-disk
// extensions. Unknown types keep a neutral extension; the fileserver sniffs
// the type when serving anyway.
var extByContentType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

// Store is a content-hash-keyed object store rooted at one directory.
type Store struct {
	root string
}

// New creates the store, ensuring the root directory exists.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("mediastore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("mediastore: create root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store root, for the public fileserver.
func (s *Store) Root() string {
	return s.root
}

// Put writes the object atomically and returns its store-relative path.
func (s *Store) Put(hash string, r io.Reader, contentType string) (string, error) {
	if err := validateHash(hash); err != nil {
		return "", err
	}
	rel := relPath(hash, extFor(contentType))
	abs := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", fmt.Errorf("mediastore: create shard dir: %w", err)
	}

	t, err := renameio.TempFile("", abs)
	if err != nil {
		return "", fmt.Errorf("mediastore: temp file: %w", err)
	}
	defer t.Cleanup() // nolint:errcheck

	if _, err := io.Copy(t, r); err != nil {
		return "", fmt.Errorf("mediastore: write object: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("mediastore: finalize object: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// Exists reports whether an object for the hash is present, returning its
// store-relative path. The extension is not part of the key, so the shard
// directory is scanned for the hash prefix.
func (s *Store) Exists(hash string) (string, bool) {
	if validateHash(hash) != nil {
		return "", false
	}
	shard := filepath.Join(s.root, hash[:2], hash[2:4])
	entries, err := os.ReadDir(shard)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == hash || strings.HasPrefix(name, hash+".") {
			return filepath.ToSlash(filepath.Join(hash[:2], hash[2:4], name)), true
		}
	}
	return "", false
}

// Open returns the object file for a store-relative path. The path is
// confined to the store root.
func (s *Store) Open(rel string) (*os.File, error) {
	abs, err := s.confine(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(abs) // #nosec G304 -- abs is confined to the store root
}

// Remove deletes every stored rendition of the hash.
func (s *Store) Remove(hash string) error {
	rel, ok := s.Exists(hash)
	for ok {
		if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("mediastore: remove object: %w", err)
		}
		rel, ok = s.Exists(hash)
	}
	return nil
}

// confine rejects any relative path that would escape the store root.
func (s *Store) confine(rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if rel == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("mediastore: path %q escapes store root", rel)
	}
	return filepath.Join(s.root, rel), nil
}

func validateHash(hash string) error {
	if len(hash) < 8 {
		return fmt.Errorf("mediastore: content hash %q too short", hash)
	}
	for _, c := range hash {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return fmt.Errorf("mediastore: content hash contains invalid character %q", c)
		}
	}
	return nil
}

func relPath(hash, ext string) string {
	return filepath.Join(hash[:2], hash[2:4], hash+ext)
}

func extFor(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	if ext, ok := extByContentType[strings.TrimSpace(strings.ToLower(contentType))]; ok {
		return ext
	}
	return ".bin"
}
