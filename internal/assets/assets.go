// Package assets resolves stimulus photo filenames to image bytes.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

// AssetNotFoundError reports a photo that cannot be served. Callers render the
// stimulus without its photo.
type AssetNotFoundError struct {
	Name string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset %q not found", e.Name)
}

// Library looks photos up in a flat directory.
type Library struct {
	fsys fs.FS
}

// New creates a library over fsys, typically os.DirFS(imagesDir).
// A nil fsys yields a library in which every lookup misses.
func New(fsys fs.FS) *Library {
	return &Library{fsys: fsys}
}

// Lookup returns the photo bytes and their content type.
func (l *Library) Lookup(name string) ([]byte, string, error) {
	if !validName(name) || l.fsys == nil {
		return nil, "", &AssetNotFoundError{Name: name}
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, "", &AssetNotFoundError{Name: name}
		}
		return nil, "", fmt.Errorf("read asset %q: %w", name, err)
	}
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	return data, ctype, nil
}

// Exists reports whether name resolves to a regular file.
func (l *Library) Exists(name string) bool {
	if !validName(name) || l.fsys == nil {
		return false
	}
	info, err := fs.Stat(l.fsys, name)
	return err == nil && info.Mode().IsRegular()
}

// validName accepts bare filenames only.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && fs.ValidPath(name)
}
