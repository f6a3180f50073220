package api

import (
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
)

// MediaCacheSeconds is the cache lifetime of served photos; stored files
// never change under the same name.
const MediaCacheSeconds = 2592000 // 30 days

// initMediaRoutes serves the upload and archive directories read-only under
// <prefix>/uploads and <prefix>/species.
func (c *Controller) initMediaRoutes() {
	if c.media == nil || c.mediaPrefix == "" {
		return
	}
	prefix := "/" + strings.Trim(c.mediaPrefix, "/")

	mounts := map[string]string{
		path.Join(prefix, "uploads"): c.media.Uploads(),
		path.Join(prefix, "species"): c.media.Root(),
	}
	for route, dir := range mounts {
		dirFs := afero.NewHttpFs(afero.NewReadOnlyFs(c.media.Fs())).Dir(dir)
		handler := http.StripPrefix(route, http.FileServer(noListing{dirFs}))
		c.Echo.GET(route+"/*", echo.WrapHandler(cacheControl(handler)))
	}
}

func cacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, immutable", MediaCacheSeconds))
		next.ServeHTTP(w, r)
	})
}

// noListing hides directory indexes.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
