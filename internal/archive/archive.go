// Package archive copies observation photos into the per-species archive and
// maps stored paths to public URLs.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tphakala/floranet-go/internal/errors"
)

// Config locates the photo directories.
type Config struct {
	Root       string // per-species archive root
	Uploads    string // directory incoming photos are stored in
	PublicBase string // URL prefix both directories are served under
}

// Archive stores canonical species photos.
type Archive struct {
	fs  afero.Fs
	cfg Config
}

// New creates an Archive on fs.
func New(fs afero.Fs, cfg Config) *Archive {
	cfg.Root = filepath.Clean(cfg.Root)
	cfg.Uploads = filepath.Clean(cfg.Uploads)
	cfg.PublicBase = strings.TrimRight(cfg.PublicBase, "/")
	return &Archive{fs: fs, cfg: cfg}
}

// Fs returns the underlying filesystem.
func (a *Archive) Fs() afero.Fs {
	return a.fs
}

// Root returns the archive root directory.
func (a *Archive) Root() string {
	return a.cfg.Root
}

// Uploads returns the directory incoming photos are stored in.
func (a *Archive) Uploads() string {
	return a.cfg.Uploads
}

// UploadPath returns a fresh, collision-free path in the uploads directory
// that keeps the extension of originalName.
func (a *Archive) UploadPath(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return filepath.Join(a.cfg.Uploads, uuid.NewString()+ext)
}

// DestinationFor returns <root>/<slug>/<observationID>-<basename of src>.
func (a *Archive) DestinationFor(scientificName string, observationID uint, src string) string {
	name := fmt.Sprintf("%d-%s", observationID, filepath.Base(src))
	return filepath.Join(a.cfg.Root, Slug(scientificName), name)
}

// Exists reports whether a regular file exists at p.
func (a *Archive) Exists(p string) bool {
	info, err := a.fs.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Save writes r to dst, creating parent directories.
func (a *Archive) Save(r io.Reader, dst string) (int64, error) {
	if err := a.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fileError(err, "mkdir", dst)
	}
	return a.writeAtomic(r, dst)
}

// Copy copies src to dst, creating parent directories as needed. The
// destination appears only once it is complete.
func (a *Archive) Copy(src, dst string) error {
	in, err := a.fs.Open(src)
	if err != nil {
		return fileError(err, "open_source", src)
	}
	defer in.Close()

	if err := a.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fileError(err, "mkdir", dst)
	}
	if _, err := a.writeAtomic(in, dst); err != nil {
		return err
	}
	return nil
}

// Remove deletes p. A missing file is not an error.
func (a *Archive) Remove(p string) error {
	if err := a.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return fileError(err, "remove", p)
	}
	return nil
}

// PublicURL maps a stored path to its URL, or "" when p lies outside both
// the archive and the uploads directory.
func (a *Archive) PublicURL(p string) string {
	if p == "" {
		return ""
	}
	clean := filepath.Clean(p)
	if rel, ok := within(a.cfg.Root, clean); ok {
		return a.cfg.PublicBase + path.Join("/species", filepath.ToSlash(rel))
	}
	if rel, ok := within(a.cfg.Uploads, clean); ok {
		return a.cfg.PublicBase + path.Join("/uploads", filepath.ToSlash(rel))
	}
	return ""
}

func within(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func (a *Archive) writeAtomic(r io.Reader, dst string) (int64, error) {
	tmp := dst + ".partial"
	out, err := a.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fileError(err, "create", tmp)
	}

	n, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = a.fs.Remove(tmp)
		return 0, fileError(err, "write", dst)
	}

	if err := a.fs.Rename(tmp, dst); err != nil {
		_ = a.fs.Remove(tmp)
		return 0, fileError(err, "rename", dst)
	}
	return n, nil
}

func fileError(err error, operation, p string) error {
	return errors.New(fmt.Errorf("archive %s %s: %w", operation, p, err)).
		Component("archive").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		FileContext(p).
		Build()
}
