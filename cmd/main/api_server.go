package main

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagglehome/gagglehome/pkg/assets"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI holds the operational endpoints served on the ops listener:
// health, config, version and lifecycle control. It is never exposed on the
// public site address.
type ServerAPI struct {
	cm         *ConfigManager
	db         *sql.DB
	assetStore *assets.Store
	shell      *assets.Shell
	actionChan chan string
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(cm *ConfigManager, db *sql.DB, assetStore *assets.Store, shell *assets.Shell, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		cm:         cm,
		db:         db,
		assetStore: assetStore,
		shell:      shell,
		actionChan: actionChan,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for the ops endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/up", a.handleUp)
	mux.HandleFunc("/up/databases", a.handleUpDatabases)
	mux.HandleFunc("/api/server/config", a.handleConfig)
	mux.HandleFunc("/api/server/version", a.handleVersion)
	mux.HandleFunc("/api/server/refresh_assets", a.handleRefreshAssets)
	mux.HandleFunc("/api/server/shutdown", a.handleShutdown)
	mux.HandleFunc("/api/server/restart", a.handleRestart)
}

// handleUp is the liveness probe: the process is accepting connections.
func (a *ServerAPI) handleUp(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpDatabases is the readiness probe. Sqlite on cold network storage
// can need a moment after boot, so the ping is retried with a short backoff
// before reporting failure.
func (a *ServerAPI) handleUpDatabases(w http.ResponseWriter, r *http.Request) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = a.db.PingContext(r.Context()); err == nil {
			respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "reachable"})
			return
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	a.logger.Error("Database readiness check failed", "error", err)
	respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "unavailable", "database": err.Error(),
	})
}

// handleConfig gets or updates the application configuration.
func (a *ServerAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		config := a.cm.Get()
		respondWithJSON(w, http.StatusOK, config)
	case http.MethodPut:
		var newConfig Config
		if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if err := a.cm.Update(newConfig); err != nil {
			a.logger.Error("Failed to save config", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to save configuration to disk")
			return
		}
		a.logger.Info("Application configuration updated and saved via API. Some changes may require a restart.")
		respondWithJSON(w, http.StatusOK, a.cm.Get())
	default:
		w.Header().Set("Allow", "GET, PUT")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleRefreshAssets re-walks the dist directory and re-parses the shell,
// for deploys that rsync a new frontend build without touching the process.
func (a *ServerAPI) handleRefreshAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := a.assetStore.Refresh(); err != nil {
		a.logger.Error("Asset refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Asset refresh failed")
		return
	}
	if err := a.shell.Reload(); err != nil {
		a.logger.Error("Shell reload failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Shell reload failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"assets": a.assetStore.Len()})
}

// handleShutdown initiates a graceful shutdown of the server.
func (a *ServerAPI) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	a.logger.Warn("Shutdown initiated via API")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is shutting down..."})

	go func() {
		a.actionChan <- actionShutdown
	}()
}

// handleRestart initiates a graceful restart of the server.
func (a *ServerAPI) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	a.logger.Warn("Restart initiated via API")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is restarting..."})

	go func() {
		a.actionChan <- actionRestart
	}()
}
