// Package blob stores message payloads (camera frames, LiDAR packets) as
// content-addressed files so tables only keep their address.
//
// A payload is named by the hex xxh3-128 of its bytes and laid out under a
// two-level fan-out: <root>/<h[0:2]>/<h[2:4]>/<h><ext>. Writing the same
// payload twice is a no-op.
package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// Ref is the address of a stored payload.
type Ref struct {
	Hash     string
	Location string // relative to the store root, slash separated
	Size     int64
}

// Store writes payloads below Root. With an empty Root only the address is
// computed and nothing is written.
type Store struct {
	Root string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store { return &Store{Root: dir} }

// Hash returns the content hash of data.
func Hash(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:])
}

// Address returns the reference data would be stored under.
func Address(data []byte, ext string) Ref {
	h := Hash(data)
	return Ref{
		Hash:     h,
		Location: h[0:2] + "/" + h[2:4] + "/" + h + ext,
		Size:     int64(len(data)),
	}
}

// Put stores data and returns its reference.
func (s *Store) Put(ctx context.Context, data []byte, ext string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	ref := Address(data, ext)
	if s == nil || s.Root == "" {
		return ref, nil
	}

	path := filepath.Join(s.Root, filepath.FromSlash(ref.Location))
	if fi, err := os.Stat(path); err == nil && fi.Size() == ref.Size {
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Ref{}, fmt.Errorf("blob: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return Ref{}, fmt.Errorf("blob: create: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Ref{}, fmt.Errorf("blob: write %s: %w", ref.Location, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Ref{}, fmt.Errorf("blob: close %s: %w", ref.Location, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return Ref{}, fmt.Errorf("blob: rename %s: %w", ref.Location, err)
	}
	return ref, nil
}

// Get reads a stored payload back.
func (s *Store) Get(ref Ref) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(ref.Location)))
}
