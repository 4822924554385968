package admin

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinia-sante/clinia/internal/mocks"
	"github.com/clinia-sante/clinia/internal/shared/config"
	"github.com/clinia-sante/clinia/internal/shared/errors"
	"github.com/clinia-sante/clinia/internal/shared/events"
)

// UserStore is the subset of the repository the handler needs
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// Handler provides HTTP handlers for admin login and the Mock Studio
type Handler struct {
	users UserStore
	mocks *mocks.Store
	cfg   config.AuthConfig
	bus   *events.Bus // nil when audit events are disabled
}

// NewHandler creates a new admin handler
func NewHandler(users UserStore, mockStore *mocks.Store, cfg config.AuthConfig, bus *events.Bus) *Handler {
	return &Handler{users: users, mocks: mockStore, cfg: cfg, bus: bus}
}

// Routes registers the admin routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/admin/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/mocks", h.GetMocks)
		r.Put("/mocks", h.PutMocks)
	})

	return r
}

// Login verifies credentials and issues a short-lived admin token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	user, err := h.users.FindByUsername(r.Context(), req.Username)
	if err != nil {
		// Do not reveal whether the username exists.
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.TokenTTL)),
		},
		Role: "admin",
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	h.publish(r.Context(), "admin.login", map[string]any{"username": user.Username})

	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// GetMocks returns the current mock template table
func (h *Handler) GetMocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mocks.All())
}

// PutMocks replaces the mock template table
func (h *Handler) PutMocks(w http.ResponseWriter, r *http.Request) {
	var templates []mocks.Template
	if err := json.NewDecoder(r.Body).Decode(&templates); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := h.mocks.Replace(templates); err != nil {
		writeError(w, errors.BadRequest("cannot save mocks: "+err.Error()))
		return
	}

	h.publish(r.Context(), "mocks.updated", map[string]any{"count": len(templates)})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// requireAdmin validates the bearer token and its admin role
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, errors.Unauthorized("admin token missing"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeError(w, errors.Unauthorized("invalid authorization header format"))
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(h.cfg.JWTSecret), nil
		})
		if err != nil {
			writeError(w, errors.Unauthorized("invalid or expired token"))
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			writeError(w, errors.Unauthorized("invalid token claims"))
			return
		}

		if claims.Role != "admin" {
			writeError(w, errors.Forbidden("forbidden"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) publish(ctx context.Context, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}

	busCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := h.bus.Publish(busCtx, events.NewEvent(eventType, "admin", data)); err != nil {
		log.Printf("admin: audit publish failed: %v", err)
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
