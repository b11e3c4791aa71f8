package sitemap

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type xmlURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlURL `xml:"url"`
}

// Parse reads a urlset document. Only the 0.9 namespace is accepted.
func Parse(r io.Reader) (*Document, error) {
	var set xmlURLSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode sitemap: %w", err)
	}
	if set.XMLName.Space != Namespace {
		return nil, fmt.Errorf("unexpected urlset namespace %q", set.XMLName.Space)
	}

	doc := &Document{URLs: make([]URL, 0, len(set.URLs))}
	for i, u := range set.URLs {
		var prio float64
		if p := strings.TrimSpace(u.Priority); p != "" {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("url %d: bad priority %q", i, u.Priority)
			}
			prio = v
		}
		doc.URLs = append(doc.URLs, URL{
			Loc:        u.Loc,
			LastMod:    strings.TrimSpace(u.LastMod),
			ChangeFreq: strings.TrimSpace(u.ChangeFreq),
			Priority:   prio,
		})
	}
	return doc, nil
}
