package sitemap

import (
	"bufio"
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/appliancepartgeeks/offermap/pkg/offers"
)

const (
	Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

	// PathPrefix is the storefront route serving a refurbished part page.
	PathPrefix = "/refurb/"

	ChangeFreq = "daily"
	Priority   = 0.7

	// TimeFormat is the W3C datetime layout used for lastmod.
	TimeFormat = "2006-01-02T15:04:05Z"

	header = `<?xml version="1.0" encoding="UTF-8"?>`
)

// URL is one <url> entry.
type URL struct {
	Loc        string
	LastMod    string
	ChangeFreq string
	Priority   float64
}

// Document is an ordered urlset.
type Document struct {
	URLs []URL
	// Generated is the run timestamp used for entries without a last-seen time.
	Generated time.Time
}

// Len is the number of URLs in the document.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.URLs)
}

// Build turns ordered aggregate entries into a sitemap document. runTime is
// captured once by the caller so every fallback lastmod in a run is the same.
// Entries are emitted in the order given.
func Build(entries []offers.Entry, baseURL string, runTime time.Time) *Document {
	base := strings.TrimRight(baseURL, "/")
	fallback := FormatTime(runTime)

	doc := &Document{
		URLs:      make([]URL, 0, len(entries)),
		Generated: runTime.UTC(),
	}
	for _, e := range entries {
		lastmod := fallback
		if e.HasLastSeen() {
			lastmod = FormatTime(e.LastSeen)
		}
		doc.URLs = append(doc.URLs, URL{
			Loc:        base + PathPrefix + e.Key,
			LastMod:    lastmod,
			ChangeFreq: ChangeFreq,
			Priority:   Priority,
		})
	}
	return doc
}

// FormatTime renders t in UTC at second precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Escape replaces the five reserved XML characters.
func Escape(s string) string {
	return html.EscapeString(s)
}

// WriteTo renders the document, including the trailing newline.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	fmt.Fprintln(bw, header)
	fmt.Fprintf(bw, "<urlset xmlns=\"%s\">\n", Namespace)
	for _, u := range d.URLs {
		fmt.Fprintln(bw, "  <url>")
		fmt.Fprintf(bw, "    <loc>%s</loc>\n", Escape(u.Loc))
		fmt.Fprintf(bw, "    <lastmod>%s</lastmod>\n", Escape(u.LastMod))
		fmt.Fprintf(bw, "    <changefreq>%s</changefreq>\n", Escape(u.ChangeFreq))
		fmt.Fprintf(bw, "    <priority>%.1f</priority>\n", u.Priority)
		fmt.Fprintln(bw, "  </url>")
	}
	fmt.Fprintln(bw, "</urlset>")

	err := bw.Flush()
	return cw.n, err
}

// Bytes renders the document into memory.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = d.WriteTo(&buf)
	return buf.Bytes()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
