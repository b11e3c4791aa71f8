package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/sitemap"
)

const (
	defaultStatsLimit = 50
	maxStatsLimit     = 1000
)

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.SitemapPath)
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "sitemap not generated yet", http.StatusNotFound)
		return
	}
	if err != nil {
		utils.Log.WithError(err).Error("Opening sitemap")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "User-agent: *\nAllow: /\nSitemap: %s\n", s.sitemapURL())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

type KeyStat struct {
	Key      string `json:"key"`
	Count    int    `json:"count"`
	LastSeen string `json:"last_seen,omitempty"`
	Loc      string `json:"loc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no catalog configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultStatsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxStatsLimit {
			http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxStatsLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.DB.TopKeys(r.Context(), s.Table, limit)
	if err != nil {
		utils.Log.WithError(err).Error("Querying top keys")
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	doc := sitemap.Build(entries, s.BaseURL, time.Now())
	stats := make([]KeyStat, 0, len(entries))
	for i, e := range entries {
		ks := KeyStat{Key: e.Key, Count: e.Count, Loc: doc.URLs[i].Loc}
		if e.HasLastSeen() {
			ks.LastSeen = sitemap.FormatTime(e.LastSeen)
		}
		stats = append(stats, ks)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
