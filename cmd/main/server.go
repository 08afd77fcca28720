package main

import (
	"context"
	"database/sql"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gagglehome/gagglehome/pkg/assets"
	"github.com/gagglehome/gagglehome/pkg/auth"
	"github.com/gagglehome/gagglehome/pkg/blog"
	"github.com/gagglehome/gagglehome/pkg/themes"
)

// Server wires the stores, the asset pipeline and the API objects onto the
// two listeners: siteHandler for the public address, opsMux for the ops one.
type Server struct {
	cm     *ConfigManager
	db     *sql.DB
	logger *slog.Logger

	metrics  *Metrics
	registry *prometheus.Registry

	assetStore *assets.Store
	shell      *assets.Shell
	blogStore  *blog.Store
	themeStore *themes.Store
	authStore  *auth.Store

	authAPI   *AuthAPI
	blogAPI   *BlogAPI
	themeAPI  *ThemeAPI
	mediaAPI  *MediaAPI
	seoAPI    *SeoAPI
	serverAPI *ServerAPI

	siteHandler http.Handler
	opsMux      *http.ServeMux
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := NewMetrics(registry)

	// store initialization
	blogStore := blog.NewStore(db)
	themeStore := themes.NewStore(db)
	authStore := auth.NewStore(db)

	shell, err := assets.NewShell(config.Server.DistDir)
	if err != nil {
		return nil, err
	}
	assetStore, err := assets.NewStore(logger.With("component", "assets"), config.Assets, config.Server.DistDir)
	if err != nil {
		return nil, err
	}

	server := &Server{
		cm:         cm,
		db:         db,
		logger:     logger,
		metrics:    metrics,
		registry:   registry,
		assetStore: assetStore,
		shell:      shell,
		blogStore:  blogStore,
		themeStore: themeStore,
		authStore:  authStore,
		opsMux:     http.NewServeMux(),
	}

	// api initialization
	secure := strings.HasPrefix(config.Server.SiteURL, "https://")
	server.authAPI = NewAuthAPI(authStore, logger, secure)
	server.blogAPI = NewBlogAPI(blogStore, server.authAPI, logger)
	server.themeAPI = NewThemeAPI(themeStore, themes.NewGenerator(config.ThemeGen), server.authAPI, logger)
	server.mediaAPI = NewMediaAPI(blogStore, server.authAPI, logger, metrics, config.Server, config.Uploads)
	server.seoAPI = NewSeoAPI(blogStore, logger, config.Server.SiteURL)
	server.serverAPI = NewServerAPI(cm, db, assetStore, shell, actionChan, logger)

	siteMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(siteMux)
	server.blogAPI.RegisterRoutes(siteMux)
	server.themeAPI.RegisterRoutes(siteMux)
	server.mediaAPI.RegisterRoutes(siteMux)
	server.seoAPI.RegisterRoutes(siteMux)

	// Everything that is not an API or media route is an asset lookup, which
	// itself falls through to the SPA shell.
	assetHandler := assets.NewHandler(
		logger.With("component", "assets"),
		assetStore, shell, server.shellData, metrics)
	siteMux.Handle("/", assetHandler)

	// State-changing API requests must pass the CSRF double-submit check.
	server.siteHandler = metrics.Instrument(server.logRequests(server.authAPI.VerifyCSRF(siteMux)))

	server.serverAPI.RegisterRoutes(server.opsMux)
	server.opsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return server, nil
}

// shellData assembles the SPA shell input at request time: the hash-named
// build entrypoints and the active theme's CSS variables for SSR injection.
func (s *Server) shellData() assets.ShellData {
	config := s.cm.Get()
	data := assets.ShellData{
		Debug:   config.Server.Debug,
		MainJS:  strings.TrimPrefix(s.assetStore.FindFirst("/assets/index-", ".js"), "/"),
		MainCSS: strings.TrimPrefix(s.assetStore.FindFirst("/assets/index-", ".css"), "/"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	theme, err := s.themeStore.Current(ctx)
	if err != nil {
		s.logger.Warn("No theme available for shell render", "error", err)
		return data
	}
	data.ThemeCSS = template.CSS(theme.CSS())
	return data
}

// logRequests writes a debug access log line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", s.clientIP(r))
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the real client address. Forwarding headers are only
// honored when the direct peer is a configured trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If splitting fails (e.g., no port), use the address as is.
		ip = r.RemoteAddr
	}
	if !s.cm.IsTrusted(ip) {
		return ip
	}

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	realIP := r.Header.Get("X-Real-Ip")
	if realIP != "" {
		return realIP
	}

	// The X-Forwarded-For header can contain a comma-separated list of IPs.
	// The first IP in the list is the original client IP.
	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	return ip
}
