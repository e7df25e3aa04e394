package ota

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"sensornode-go/services/config"

	"github.com/stretchr/testify/require"
)

// memFlash is an in-memory volume; it refuses to mount until formatted when
// blank is set.
type memFlash struct {
	blank     bool
	mounted   bool
	formats   int
	formatErr error
	writeErr  error
	files     map[string][]byte
}

func (f *memFlash) Mount() error {
	if f.blank {
		return errors.New("corrupt")
	}
	f.mounted = true
	if f.files == nil {
		f.files = map[string][]byte{}
	}
	return nil
}

func (f *memFlash) Format() error {
	f.formats++
	if f.formatErr != nil {
		return f.formatErr
	}
	f.blank = false
	f.files = map[string][]byte{}
	return nil
}

func (f *memFlash) Stat(name string) (fs.FileInfo, error) {
	if _, ok := f.files[name]; !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return nil, nil
}

func (f *memFlash) Remove(name string) error {
	if _, ok := f.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(f.files, name)
	return nil
}

func (f *memFlash) Rename(from, to string) error {
	b, ok := f.files[from]
	if !ok {
		return &fs.PathError{Op: "rename", Path: from, Err: fs.ErrNotExist}
	}
	delete(f.files, from)
	f.files[to] = b
	return nil
}

func (f *memFlash) ReadFile(name string) ([]byte, error) {
	b, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return bytes.Clone(b), nil
}

func (f *memFlash) OpenFile(name string, _ int) (io.WriteCloser, error) {
	f.files[name] = nil
	return &memFile{f: f, name: name}, nil
}

type memFile struct {
	f    *memFlash
	name string
}

func (w *memFile) Write(p []byte) (int, error) {
	if w.f.writeErr != nil {
		return 0, w.f.writeErr
	}
	w.f.files[w.name] = append(w.f.files[w.name], p...)
	return len(p), nil
}

func (w *memFile) Close() error { return nil }

func TestMountFlashFormatsBlankVolume(t *testing.T) {
	f := &memFlash{blank: true}
	store, err := MountFlash(f, quietLog())
	require.NoError(t, err)
	require.Equal(t, 1, f.formats)
	require.True(t, f.mounted)

	ok, err := store.Exists("main.py")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMountFlashKeepsValidVolume(t *testing.T) {
	f := &memFlash{files: map[string][]byte{"/main.py": []byte("x")}}
	store, err := MountFlash(f, quietLog())
	require.NoError(t, err)
	require.Zero(t, f.formats)

	b, err := store.ReadFile("main.py")
	require.NoError(t, err)
	require.Equal(t, "x", string(b))
}

func TestMountFlashFormatFailure(t *testing.T) {
	f := &memFlash{blank: true, formatErr: errors.New("erase failed")}
	_, err := MountFlash(f, quietLog())
	require.ErrorContains(t, err, "erase failed")
	require.False(t, f.mounted)
}

func TestFlashWriteFailureKeepsOldContent(t *testing.T) {
	f := &memFlash{}
	store, err := MountFlash(f, quietLog())
	require.NoError(t, err)
	require.NoError(t, store.WriteFile("main.py", []byte("old")))

	f.writeErr = errors.New("flash full")
	require.Error(t, store.WriteFile("main.py", []byte("new")))

	b, err := store.ReadFile("main.py")
	require.NoError(t, err)
	require.Equal(t, "old", string(b))
	require.Equal(t, []string{"/main.py"}, keys(f.files))
}

func TestCheckPromotesOnFlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, image110)
	}))
	t.Cleanup(srv.Close)

	f := &memFlash{blank: true}
	store, err := MountFlash(f, quietLog())
	require.NoError(t, err)
	require.NoError(t, store.WriteFile("main.py", []byte("VERSION = \"1.0.0\"\n")))

	cfg := config.OTA{SourceURL: srv.URL, BootPath: "main.py", StagingPath: "new_main.py", Marker: config.DefaultMarker}
	res := NewManager(cfg, "1.0.0", store, srv.Client(), quietLog()).Check(context.Background())
	require.Equal(t, StatePromoted, res.State)
	require.Equal(t, image110, string(f.files["/main.py"]))
	require.Equal(t, []string{"/main.py"}, keys(f.files))
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
