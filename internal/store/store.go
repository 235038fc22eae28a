// Package store provides access to a directory of per-server files.
//
// A Dir holds one file per server, named after the server with a fixed extension.
// Writes go through Persist, which replaces files atomically so readers observe
// either the previous or the new content, never a partial write.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	// CertificateExt is the extension of PEM certificate files.
	CertificateExt = ".crt"

	// MetadataExt is the extension of server metadata files.
	MetadataExt = ".json"

	dirMode  os.FileMode = 0755
	fileMode os.FileMode = 0644
)

// IOError records a failed filesystem operation and the path it was applied to.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s '%s': %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *IOError) Unwrap() error { return e.Err }

// Cause returns the underlying filesystem error.
func (e *IOError) Cause() error { return e.Err }

// IsNotExist reports whether err is, or wraps, a file-not-found error.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Dir is a directory of server files on some filesystem.
type Dir struct {
	fs   afero.Fs
	path string
}

// NewDir returns a Dir rooted at path on the provided filesystem. If fs is nil the
// operating system's filesystem is used.
func NewDir(fs afero.Fs, path string) *Dir {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Dir{fs: fs, path: path}
}

// Path returns the directory the Dir is rooted at.
func (d *Dir) Path() string {
	return d.path
}

// FilePath returns the path of the file for name with the given extension.
func (d *Dir) FilePath(name, ext string) string {
	return filepath.Join(d.path, name+ext)
}

// tempPath returns the sibling path that Persist writes to before renaming. The
// name never carries ext as a suffix so that List does not pick it up.
func (d *Dir) tempPath(name, ext string) string {
	return filepath.Join(d.path, fmt.Sprintf(".#%s%s#", name, ext))
}

// List returns the sorted names of the regular files in the directory which end
// with ext, with the extension stripped. Files named exactly ext are skipped.
func (d *Dir) List(ctx context.Context, ext string) ([]string, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, &IOError{Op: "list", Path: d.path, Err: err}
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}

		name := strings.TrimSuffix(info.Name(), ext)
		if name == info.Name() || name == "" {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// Read returns the contents of the file for name with the given extension.
func (d *Dir) Read(ctx context.Context, name, ext string) ([]byte, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := d.FilePath(name, ext)

	data, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	return data, nil
}

// Persist replaces the file for name with the given extension by data.
//
// The directory is created if it doesn't exist. data is first written to a
// temporary sibling file which is then renamed over the final path, so the file
// holds either its previous or its new content at all times. The temporary file is
// not removed if a step fails; the next successful Persist overwrites it.
func (d *Dir) Persist(ctx context.Context, name, ext string, data []byte) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := d.fs.MkdirAll(d.path, dirMode); err != nil {
		return &IOError{Op: "mkdir", Path: d.path, Err: err}
	}

	tmp := d.tempPath(name, ext)

	f, err := d.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return &IOError{Op: "create", Path: tmp, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: tmp, Err: err}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return &IOError{Op: "sync", Path: tmp, Err: err}
	}

	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: tmp, Err: err}
	}

	path := d.FilePath(name, ext)
	if err := d.fs.Rename(tmp, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}

	return nil
}

// PersistCertificate persists the PEM certificate of the named server.
func (d *Dir) PersistCertificate(ctx context.Context, name string, pemText []byte) error {
	return d.Persist(ctx, name, CertificateExt, pemText)
}
