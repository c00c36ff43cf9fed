// Package views holds the server-rendered portal pages.
package views

import (
	"embed"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/template/html/v2"
	"github.com/shopspring/decimal"
)

//go:embed *.html layouts/*.html portal/*.html admin/*.html
var files embed.FS

// Engine returns the template engine for fiber.Config.Views.
func Engine(loc *time.Location) *html.Engine {
	if loc == nil {
		loc = time.Local
	}
	engine := html.NewFileSystem(http.FS(files), ".html")
	engine.AddFunc("date", func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.In(loc).Format("02 Jan 2006")
	})
	engine.AddFunc("datetime", func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.In(loc).Format("02 Jan 2006 15:04")
	})
	engine.AddFunc("money", func(d decimal.Decimal) string {
		return "RM " + d.StringFixed(2)
	})
	engine.AddFunc("title", func(s string) string {
		s = strings.ReplaceAll(s, "_", " ")
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	})
	return engine
}
