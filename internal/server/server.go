package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/offers"
)

// StatsSource answers the top-keys query. *storage.DB satisfies it.
type StatsSource interface {
	TopKeys(ctx context.Context, table string, limit int) ([]offers.Entry, error)
	Ping(ctx context.Context) error
}

type Server struct {
	DB          StatsSource // may be nil; /api/stats then answers 503
	Table       string
	SitemapPath string
	BaseURL     string
	Username    string
	Password    string
	Metrics     http.Handler // may be nil
}

func New(db StatsSource, table, sitemapPath, baseURL, user, pass string) *Server {
	return &Server{
		DB:          db,
		Table:       table,
		SitemapPath: sitemapPath,
		BaseURL:     baseURL,
		Username:    user,
		Password:    pass,
	}
}

// SitemapName is the URL path the sitemap file is served under.
func (s *Server) SitemapName() string {
	return "/" + filepath.Base(s.SitemapPath)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+s.SitemapName(), s.handleSitemap)
	mux.HandleFunc("GET /robots.txt", s.handleRobots)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// API Group
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))

	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		utils.Log.Infof("Starting server on %s, sitemap at %s", addr, s.SitemapName())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) sitemapURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.SitemapName()
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
