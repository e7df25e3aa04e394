package ota

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const partialFileSuffix = ".part"

// Store holds the boot and staging slots.
type Store interface {
	Exists(name string) (bool, error)
	Remove(name string) error
	Rename(from, to string) error
	// WriteFile leaves either the complete content under name or nothing new.
	WriteFile(name string, content []byte) error
	ReadFile(name string) ([]byte, error)
	// ReplacesOnRename reports whether Rename atomically replaces an existing
	// destination.
	ReplacesOnRename() bool
}

// FsStore keeps slots as files below root. Slot names use forward slashes.
type FsStore struct {
	root string
}

var _ Store = FsStore{}

func NewFsStore(root string) FsStore { return FsStore{root: root} }

func (s FsStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s FsStore) Exists(name string) (bool, error) {
	if _, err := os.Stat(s.path(name)); err == nil {
		return true, nil
	} else if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else {
		return false, err
	}
}

func (s FsStore) Remove(name string) error { return os.Remove(s.path(name)) }

func (s FsStore) Rename(from, to string) error { return os.Rename(s.path(from), s.path(to)) }

func (s FsStore) ReadFile(name string) ([]byte, error) { return os.ReadFile(s.path(name)) }

func (s FsStore) WriteFile(name string, content []byte) error {
	path := s.path(name)
	partial := path + partialFileSuffix
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if fd, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644); err != nil {
		return err
	} else if _, err = fd.Write(content); err != nil {
		_ = fd.Close()
		return err
	} else if err = fd.Sync(); err != nil {
		_ = fd.Close()
		return err
	} else if err = fd.Close(); err != nil {
		return err
	} else {
		return os.Rename(partial, path)
	}
}

// ReplacesOnRename is true on POSIX systems.
func (s FsStore) ReplacesOnRename() bool { return runtime.GOOS != "windows" }
