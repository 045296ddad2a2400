package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrSlotEmpty is returned by Slot.Get when nothing has been stored yet.
var ErrSlotEmpty = errors.New("slot empty")

// Slot is a single named value in some persistent key-value storage. Put
// overwrites the whole value.
type Slot interface {
	Get() ([]byte, error)
	Put(data []byte) error
}

// FileSlot keeps the value in one file.
type FileSlot struct {
	fs   afero.Fs
	path string
}

func NewFileSlot(fsys afero.Fs, path string) *FileSlot {
	return &FileSlot{fs: fsys, path: path}
}

func (s *FileSlot) Path() string { return s.path }

func (s *FileSlot) Get() ([]byte, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSlotEmpty
		}
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrSlotEmpty
	}
	return b, nil
}

func (s *FileSlot) Put(data []byte) error {
	return atomicWriteFile(s.fs, s.path, data, 0o644)
}

// MemSlot keeps the value in memory. FailWith makes every Put fail.
type MemSlot struct {
	data     []byte
	set      bool
	Writes   int
	FailWith error
}

// NewMemSlot returns a slot preloaded with data, or an empty one for nil.
func NewMemSlot(data []byte) *MemSlot {
	m := &MemSlot{}
	if data != nil {
		m.data = append([]byte(nil), data...)
		m.set = true
	}
	return m
}

func (m *MemSlot) Get() ([]byte, error) {
	if !m.set {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemSlot) Put(data []byte) error {
	m.Writes++
	if m.FailWith != nil {
		return m.FailWith
	}
	m.data = append([]byte(nil), data...)
	m.set = true
	return nil
}

func atomicWriteFile(fsys afero.Fs, path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%d", timeNow().UnixNano()))
	if err := afero.WriteFile(fsys, tmp, data, perm); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	// Rename is atomic on same filesystem.
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return nil
}
