// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	xglog "github.com/evermark/mediad/internal/log"
)

// mediaFileServer serves fast-tier objects from the media store root with
// checks against path traversal, symlink escapes and directory listing.
func (s *Server) mediaFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := xglog.WithComponentFromContext(r.Context(), "fileserver")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := r.URL.Path
		if isPathTraversal(path) {
			logger.Warn().Str("event", "media_req.denied").Str("path", path).Str("reason", "path_escape").Msg("detected traversal sequence")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if path == "" || strings.HasSuffix(path, "/") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		fullPath := filepath.Join(s.mediaRoot, filepath.FromSlash(path))

		realPath, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			logger.Error().Err(err).Str("path", fullPath).Msg("could not evaluate symlinks")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		realRoot, err := filepath.EvalSymlinks(s.mediaRoot)
		if err != nil {
			logger.Error().Err(err).Msg("could not evaluate symlinks on media root")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		relPath, err := filepath.Rel(realRoot, realPath)
		if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
			logger.Warn().Str("event", "media_req.denied").Str("path", path).Str("reason", "path_escape").Msg("path escapes media root")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		f, err := os.Open(realPath) // #nosec G304 -- realPath is confined to the media root
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer f.Close() // nolint:errcheck

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// Weak ETag from modtime and size; objects are content-addressed so
		// this is stable across restarts.
		etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")

		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// isPathTraversal detects parent traversal through multiple URL-decode
// passes, Unicode normalization and NUL bytes.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			decoded = d2
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	dangerSubstrings := []string{
		"..",
		"%00",
		"\x00",
		"%c0%ae",
		"%e0%80%ae",
	}
	for _, pat := range dangerSubstrings {
		if strings.Contains(lower, pat) {
			return true
		}
	}

	normalized := strings.ToLower(norm.NFC.String(decoded))
	return strings.Contains(normalized, "..")
}
