// Package server exposes the HTTP and WebSocket API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"contractlens/internal/app"
	"contractlens/internal/ratelimit"
	"contractlens/internal/util"
	"contractlens/internal/ws"
	"contractlens/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Hub            *ws.Hub
	AuthLimiter    *ratelimit.FixedWindowLimiter
	MaxUploadBytes int64
	TrustForwarded bool
}

// Server exposes the contract review API.
type Server struct {
	app            *app.App
	hub            *ws.Hub
	mux            *http.ServeMux
	authLimiter    *ratelimit.FixedWindowLimiter
	maxUploadBytes int64
	trustForwarded bool
	upgrader       websocket.Upgrader
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	s := &Server{
		app:            cfg.App,
		hub:            cfg.Hub,
		mux:            http.NewServeMux(),
		authLimiter:    cfg.AuthLimiter,
		maxUploadBytes: maxUpload,
		trustForwarded: cfg.TrustForwarded,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Cross-origin browsers are allowed; auth happens via the
			// session token, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.Handle("/auth/signup", s.rateLimited("signup", http.HandlerFunc(s.handleSignup)))
	s.mux.Handle("/auth/login", s.rateLimited("login", http.HandlerFunc(s.handleLogin)))
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.Handle("/auth/me", s.withUser(s.handleMe))

	// contracts
	s.mux.Handle("/contracts", s.withUser(s.handleContracts))
	s.mux.Handle("/contracts/", s.withUser(s.handleContractByID))

	// live comment feed
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		user, err := s.app.UserFromToken(r.Context(), token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) rateLimited(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiter != nil {
			key := route + ":" + util.ClientIP(r, s.trustForwarded)
			if !s.authLimiter.Allow(key) {
				writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type authRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleWebSocket authenticates from the token query parameter or bearer
// header, upgrades, and binds the user to the connection for its lifetime.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if t, ok := bearerToken(r); ok {
			token = t
		}
	}
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	user, err := s.app.UserFromToken(r.Context(), token)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.HandleConnection(r.Context(), sock, user, s.app)
}

// writeAppError maps application sentinels onto status codes and stable
// error codes.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrEmptyBody),
		errors.Is(err, app.ErrInvalidRange):
		writeError(w, r, http.StatusBadRequest, badRequestCode(err), err.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, app.ErrContractNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "contract not found")
	case errors.Is(err, app.ErrContractNotReady):
		writeError(w, r, http.StatusConflict, "not_ready", "contract text is not ready")
	case errors.Is(err, app.ErrTimeout):
		writeError(w, r, http.StatusGatewayTimeout, "timeout", "storage timed out")
	case errors.Is(err, app.ErrStorageUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable")
	default:
		logger := util.LoggerFromContext(r.Context())
		logger.Error("unhandled error", "error", err, "path", r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func badRequestCode(err error) string {
	switch {
	case errors.Is(err, app.ErrEmptyBody):
		return "empty_body"
	case errors.Is(err, app.ErrInvalidRange):
		return "invalid_range"
	default:
		return "invalid_input"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, RequestID: util.RequestIDFromRequest(r)})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not_found", "not found")
}
