package main

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Embed built frontend distribution.
//
//go:embed all:frontend/dist
var staticAssets embed.FS

// attachStatic registers embedded static asset middleware:
//  1. Intercepts GET/HEAD requests not under /api
//  2. If a static file matches, serve it directly and Abort
//  3. Otherwise serve index.html so client-side routing works
func attachStatic(engine *gin.Engine) {
	distFS, err := fs.Sub(staticAssets, "frontend/dist")
	if err != nil {
		return
	}

	fileServer := http.FileServer(http.FS(distFS))

	engine.Use(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		p := c.Request.URL.Path
		// Let API + websocket routes fall through.
		if strings.HasPrefix(p, "/api") || p == "/healthz" {
			return
		}

		trimmed := strings.TrimPrefix(p, "/")
		if trimmed != "" {
			if f, err := distFS.Open(trimmed); err == nil {
				_ = f.Close()
				fileServer.ServeHTTP(c.Writer, c.Request)
				c.Abort()
				return
			}
		}

		// SPA fallback
		index, err := fs.ReadFile(distFS, "index.html")
		if err != nil {
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", index)
		c.Abort()
	})
}
