package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gagglehome/gagglehome/pkg/themes"
)

// ThemeAPI holds the dependencies for the theme API handlers.
type ThemeAPI struct {
	store     *themes.Store
	generator *themes.Generator
	auth      *AuthAPI
	logger    *slog.Logger
}

func NewThemeAPI(store *themes.Store, generator *themes.Generator, auth *AuthAPI, logger *slog.Logger) *ThemeAPI {
	return &ThemeAPI{
		store:     store,
		generator: generator,
		auth:      auth,
		logger:    logger,
	}
}

// RegisterRoutes sets up the routing for all /api/v1/themes endpoints.
func (a *ThemeAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/themes", a.handleThemes)
	mux.HandleFunc("/api/v1/themes/", a.handleThemeByName)
	mux.HandleFunc("/api/v1/themes/available", a.handleAvailable)
	mux.HandleFunc("/api/v1/themes/current", a.handleCurrent)
	mux.HandleFunc("/api/v1/themes/activate", a.handleActivate)
	mux.HandleFunc("/api/v1/themes/generate", a.handleGenerate)
}

func (a *ThemeAPI) handleThemes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		list, err := a.store.List(r.Context())
		if err != nil {
			a.logger.Error("Failed to list themes", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to list themes")
			return
		}
		respondWithJSON(w, http.StatusOK, list)
	case http.MethodPost:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		var theme themes.Theme
		if err := json.NewDecoder(r.Body).Decode(&theme); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if err := a.store.Create(r.Context(), &theme); err != nil {
			if errors.Is(err, themes.ErrNameTaken) {
				respondWithError(w, http.StatusConflict, "A theme with this name already exists")
				return
			}
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Info("Theme created", "name", theme.Name)
		respondWithJSON(w, http.StatusCreated, &theme)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *ThemeAPI) handleThemeByName(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/themes/"), "/")
	switch name {
	// The fixed subroutes are registered separately; the trailing-slash
	// pattern still catches them when the client omits the final segment.
	case "", "available", "current", "activate", "generate":
		respondWithError(w, http.StatusNotFound, "Unknown theme route")
		return
	}

	switch r.Method {
	case http.MethodGet:
		theme, err := a.store.Get(r.Context(), name)
		if errors.Is(err, themes.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Theme not found")
			return
		}
		if err != nil {
			a.logger.Error("Failed to get theme", "name", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to get theme")
			return
		}
		respondWithJSON(w, http.StatusOK, theme)
	case http.MethodPut:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		var theme themes.Theme
		if err := json.NewDecoder(r.Body).Decode(&theme); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		theme.Name = name
		if err := a.store.Update(r.Context(), &theme); err != nil {
			if errors.Is(err, themes.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Theme not found")
				return
			}
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, &theme)
	case http.MethodDelete:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		if err := a.store.Delete(r.Context(), name); err != nil {
			if errors.Is(err, themes.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Theme not found")
				return
			}
			// Deleting the selected theme is refused by the store.
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAvailable lists active themes for the theme picker. Public.
func (a *ThemeAPI) handleAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	list, err := a.store.List(r.Context())
	if err != nil {
		a.logger.Error("Failed to list themes", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list themes")
		return
	}
	available := make([]*themes.Theme, 0, len(list))
	for _, t := range list {
		if t.IsActive {
			available = append(available, t)
		}
	}
	respondWithJSON(w, http.StatusOK, available)
}

// handleCurrent returns the resolved current theme plus its generated CSS.
// Public: the frontend uses it to style before hydration.
func (a *ThemeAPI) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	theme, err := a.store.Current(r.Context())
	if errors.Is(err, themes.ErrNoThemes) {
		respondWithError(w, http.StatusNotFound, "No active themes are installed")
		return
	}
	if err != nil {
		a.logger.Error("Failed to resolve current theme", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve current theme")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"theme": theme, "css": theme.CSS()})
}

// ActivateRequest selects the current and fallback themes.
type ActivateRequest struct {
	Current  string `json:"current"`
	Fallback string `json:"fallback"`
}

func (a *ThemeAPI) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user := a.auth.RequireStaff(w, r)
	if user == nil {
		return
	}

	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if err := a.store.SetSetting(r.Context(), req.Current, req.Fallback, &user.ID); err != nil {
		if errors.Is(err, themes.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Theme not found or not active")
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.logger.Info("Theme activated", "current", req.Current, "fallback", req.Fallback, "by", user.Username)
	respondWithJSON(w, http.StatusOK, map[string]string{"current": req.Current, "fallback": req.Fallback})
}

// GenerateRequest asks the AI generator for a new theme.
type GenerateRequest struct {
	Prompt     string   `json:"prompt"`
	Referenced []string `json:"referenced_themes"`
}

func (a *ThemeAPI) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if a.auth.RequireStaff(w, r) == nil {
		return
	}
	if !a.generator.Enabled() {
		respondWithError(w, http.StatusServiceUnavailable, "Theme generation is not configured")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondWithError(w, http.StatusBadRequest, "A prompt is required")
		return
	}

	var referenced []*themes.Theme
	for _, name := range req.Referenced {
		theme, err := a.store.Get(r.Context(), name)
		if errors.Is(err, themes.ErrNotFound) {
			continue
		}
		if err != nil {
			a.logger.Error("Failed to load referenced theme", "name", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to load referenced theme")
			return
		}
		referenced = append(referenced, theme)
	}

	theme, err := a.generator.Generate(r.Context(), req.Prompt, referenced)
	if err != nil {
		a.logger.Error("Theme generation failed", "error", err)
		respondWithError(w, http.StatusBadGateway, "Theme generation failed")
		return
	}

	if err = a.store.Create(r.Context(), theme); err != nil {
		if errors.Is(err, themes.ErrNameTaken) {
			// Return the generated theme without saving; the caller can
			// rename and save it explicitly.
			respondWithJSON(w, http.StatusOK, map[string]any{"theme": theme, "saved": false})
			return
		}
		a.logger.Error("Failed to save generated theme", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save generated theme")
		return
	}
	a.logger.Info("Theme generated", "name", theme.Name)
	respondWithJSON(w, http.StatusCreated, map[string]any{"theme": theme, "saved": true})
}
