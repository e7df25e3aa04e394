package ota

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
)

// FlashFS is the part of an on-board flash filesystem FlashStore uses.
// Stat must report a missing entry with an error matching fs.ErrNotExist.
type FlashFS interface {
	Mount() error
	Format() error
	Stat(name string) (fs.FileInfo, error)
	Remove(name string) error
	Rename(from, to string) error
	OpenFile(name string, flag int) (io.WriteCloser, error)
	ReadFile(name string) ([]byte, error)
}

// FlashStore keeps slots at the root of a flash filesystem that has no
// os-level mount.
type FlashStore struct {
	fs FlashFS
}

var _ Store = FlashStore{}

// MountFlash mounts fsys and returns a store over it. A volume that does not
// mount is formatted once; the boot slot is lost in that case and the next
// check installs the remote image.
func MountFlash(fsys FlashFS, log *slog.Logger) (FlashStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := fsys.Mount(); err != nil {
		log.Warn("flash mount failed, formatting", "err", err)
		if err := fsys.Format(); err != nil {
			return FlashStore{}, err
		}
		if err := fsys.Mount(); err != nil {
			return FlashStore{}, err
		}
	}
	return FlashStore{fs: fsys}, nil
}

func (s FlashStore) path(name string) string { return path.Join("/", name) }

func (s FlashStore) Exists(name string) (bool, error) {
	if _, err := s.fs.Stat(s.path(name)); err == nil {
		return true, nil
	} else if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else {
		return false, err
	}
}

func (s FlashStore) Remove(name string) error { return s.fs.Remove(s.path(name)) }

func (s FlashStore) Rename(from, to string) error {
	return s.fs.Rename(s.path(from), s.path(to))
}

func (s FlashStore) ReadFile(name string) ([]byte, error) { return s.fs.ReadFile(s.path(name)) }

// WriteFile stages content under a partial name and renames it into place;
// the file is committed to flash on Close.
func (s FlashStore) WriteFile(name string, content []byte) error {
	partial := s.path(name) + partialFileSuffix
	fd, err := s.fs.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	if err != nil {
		return err
	}
	if _, err := fd.Write(content); err != nil {
		_ = fd.Close()
		_ = s.fs.Remove(partial)
		return err
	}
	if err := fd.Close(); err != nil {
		_ = s.fs.Remove(partial)
		return err
	}
	return s.fs.Rename(partial, s.path(name))
}

// ReplacesOnRename is true: littlefs renames over an existing file atomically.
func (s FlashStore) ReplacesOnRename() bool { return true }
