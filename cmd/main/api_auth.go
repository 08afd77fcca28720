package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagglehome/gagglehome/pkg/auth"
)

const (
	sessionCookieName = "gh_session"
	csrfCookieName    = "gh_csrftoken"
	csrfHeaderName    = "X-CSRFToken"
)

// AuthAPI holds the dependencies for the authentication API handlers.
type AuthAPI struct {
	store  *auth.Store
	logger *slog.Logger
	secure bool // set Secure on cookies when the site is served over https
}

func NewAuthAPI(store *auth.Store, logger *slog.Logger, secure bool) *AuthAPI {
	return &AuthAPI{
		store:  store,
		logger: logger,
		secure: secure,
	}
}

// RegisterRoutes sets up the routing for all auth endpoints on a standard http.ServeMux.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/login", a.handleLogin)
	mux.HandleFunc("/api/v1/logout", a.handleLogout)
	mux.HandleFunc("/api/v1/signup", a.handleSignup)
	mux.HandleFunc("/api/v1/auth_status", a.handleAuthStatus)
	mux.HandleFunc("/api/v1/csrf_token", a.handleCSRFToken)
}

// LoginRequest is the expected JSON body for logging in.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *AuthAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	user, err := a.store.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondWithError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		a.logger.Error("Login failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	token, err := a.store.CreateSession(r.Context(), user.ID, auth.DefaultSessionTTL)
	if err != nil {
		a.logger.Error("Failed to create session", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	a.setSessionCookie(w, token, auth.DefaultSessionTTL)
	a.logger.Info("User logged in", "user", user.Username)
	respondWithJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *AuthAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err = a.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			a.logger.Error("Failed to delete session", "error", err)
		}
	}
	a.setSessionCookie(w, "", -time.Hour)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (a *AuthAPI) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req auth.Signup
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	user, err := a.store.CreateUser(r.Context(), req)
	if errors.Is(err, auth.ErrEmailTaken) {
		respondWithError(w, http.StatusConflict, "Email is already registered")
		return
	}
	if err != nil {
		// Validation failures carry the reason; everything else is opaque.
		if req.Validate() != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("Signup failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Signup failed")
		return
	}

	token, err := a.store.CreateSession(r.Context(), user.ID, auth.DefaultSessionTTL)
	if err != nil {
		a.logger.Error("Failed to create session after signup", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Signup failed")
		return
	}

	a.setSessionCookie(w, token, auth.DefaultSessionTTL)
	a.logger.Info("User signed up", "user", user.Username, "staff", user.IsStaff)
	respondWithJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *AuthAPI) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := a.CurrentUser(r)
	if user == nil {
		respondWithJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
}

// handleCSRFToken issues the double-submit token: the same value goes into a
// cookie (readable by the frontend) and the JSON body. State-changing
// requests must echo it back in the X-CSRFToken header.
func (a *AuthAPI) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token, err := auth.NewCSRFToken()
	if err != nil {
		a.logger.Error("Failed to generate CSRF token", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Token generation failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.DefaultSessionTTL.Seconds()),
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
	respondWithJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// CurrentUser resolves the session cookie to a user, or nil when the request
// is anonymous.
func (a *AuthAPI) CurrentUser(r *http.Request) *auth.User {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	user, err := a.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidSession) {
			a.logger.Error("Session lookup failed", "error", err)
		}
		return nil
	}
	return user
}

// RequireStaff resolves the session and writes a 401/403 when the request is
// not from a staff user. Handlers treat a nil return as "response sent".
func (a *AuthAPI) RequireStaff(w http.ResponseWriter, r *http.Request) *auth.User {
	user := a.CurrentUser(r)
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return nil
	}
	if !user.IsStaff {
		respondWithError(w, http.StatusForbidden, "Staff access required")
		return nil
	}
	return user
}

// VerifyCSRF is middleware enforcing the double-submit check on
// state-changing methods. Safe methods pass through untouched.
func (a *AuthAPI) VerifyCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		header := r.Header.Get(csrfHeaderName)
		if err != nil || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			respondWithError(w, http.StatusForbidden, "CSRF token missing or invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AuthAPI) setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
