package sitemap

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/appliancepartgeeks/offermap/pkg/offers"
)

var runTime = time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)

func TestBuild_LocAndLastMod(t *testing.T) {
	seen := time.Date(2024, 2, 3, 4, 5, 6, 999, time.FixedZone("EST", -5*60*60))
	entries := []offers.Entry{
		{Key: "xyz", Count: 4, LastSeen: seen},
		{Key: "abc", Count: 2},
	}

	doc := Build(entries, "https://example.com/", runTime)
	if doc.Len() != 2 {
		t.Fatalf("expected 2 urls, got %d", doc.Len())
	}

	tests := []struct {
		idx     int
		loc     string
		lastmod string
	}{
		{0, "https://example.com/refurb/xyz", "2024-02-03T09:05:06Z"},
		{1, "https://example.com/refurb/abc", "2025-06-01T12:30:45Z"},
	}
	for _, tt := range tests {
		u := doc.URLs[tt.idx]
		if u.Loc != tt.loc {
			t.Errorf("url %d loc = %q, want %q", tt.idx, u.Loc, tt.loc)
		}
		if u.LastMod != tt.lastmod {
			t.Errorf("url %d lastmod = %q, want %q", tt.idx, u.LastMod, tt.lastmod)
		}
		if u.ChangeFreq != "daily" || u.Priority != 0.7 {
			t.Errorf("url %d unexpected changefreq/priority: %+v", tt.idx, u)
		}
	}
}

func TestBuild_TrailingSlashes(t *testing.T) {
	for _, base := range []string{"https://example.com", "https://example.com/", "https://example.com///"} {
		doc := Build([]offers.Entry{{Key: "k1", Count: 1}}, base, runTime)
		if got := doc.URLs[0].Loc; got != "https://example.com/refurb/k1" {
			t.Errorf("base %q produced %q", base, got)
		}
	}
}

func TestBuild_FallbackIsSharedAcrossEntries(t *testing.T) {
	entries := []offers.Entry{{Key: "a", Count: 3}, {Key: "b", Count: 2}, {Key: "c", Count: 1}}
	doc := Build(entries, "https://example.com", runTime)
	for _, u := range doc.URLs {
		if u.LastMod != FormatTime(runTime) {
			t.Errorf("%s lastmod = %s, want run time", u.Loc, u.LastMod)
		}
	}
}

func TestBuild_PreservesOrder(t *testing.T) {
	entries := []offers.Entry{{Key: "b", Count: 1}, {Key: "a", Count: 5}}
	doc := Build(entries, "https://example.com", runTime)
	if !strings.HasSuffix(doc.URLs[0].Loc, "/b") || !strings.HasSuffix(doc.URLs[1].Loc, "/a") {
		t.Errorf("Build must not reorder entries: %+v", doc.URLs)
	}
}

func TestWriteTo_Golden(t *testing.T) {
	doc := Build([]offers.Entry{
		{Key: "xyz", Count: 4, LastSeen: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}, "https://example.com/", runTime)

	want := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://example.com/refurb/xyz</loc>
    <lastmod>2024-01-02T03:04:05Z</lastmod>
    <changefreq>daily</changefreq>
    <priority>0.7</priority>
  </url>
</urlset>
`
	var buf bytes.Buffer
	n, err := doc.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
	if n != int64(len(want)) {
		t.Errorf("WriteTo reported %d bytes, want %d", n, len(want))
	}
}

func TestWriteTo_EmptyDocumentIsWellFormed(t *testing.T) {
	doc := Build(nil, "https://example.com", runTime)
	out := doc.Bytes()

	if strings.Contains(string(out), "<url>") {
		t.Fatalf("empty document has url entries:\n%s", out)
	}
	if !strings.HasSuffix(string(out), "</urlset>\n") || strings.HasSuffix(string(out), "\n\n") {
		t.Errorf("document must end with a single newline: %q", out)
	}

	parsed, err := Parse(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Len() != 0 {
		t.Errorf("expected 0 urls, got %d", parsed.Len())
	}
}

func TestEscape_RoundTrip(t *testing.T) {
	bases := []string{
		`https://example.com/?a=1&b=2`,
		`https://example.com/<shop>`,
		`https://example.com/"quoted"`,
		`https://example.com/it's`,
		`https://ex&mple.com/&<>"'/`,
	}
	for _, base := range bases {
		t.Run(base, func(t *testing.T) {
			doc := Build([]offers.Entry{{Key: "wed15p2", Count: 1}}, base, runTime)
			raw := doc.Bytes()

			for _, bad := range []string{`<shop>`, `"quoted"`, `it's`} {
				if strings.Contains(string(raw), bad) {
					t.Fatalf("unescaped %q in output:\n%s", bad, raw)
				}
			}

			parsed, err := Parse(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("Parse: %v\n%s", err, raw)
			}
			want := strings.TrimRight(base, "/") + "/refurb/wed15p2"
			if parsed.URLs[0].Loc != want {
				t.Errorf("round trip loc = %q, want %q", parsed.URLs[0].Loc, want)
			}
		})
	}
}

func TestParse_RejectsForeignRoot(t *testing.T) {
	inputs := map[string]string{
		"no namespace":  `<urlset><url><loc>x</loc></url></urlset>`,
		"sitemap index": `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></sitemapindex>`,
		"garbage":       `not xml`,
	}
	for name, in := range inputs {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
