package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"codeshare/internal/session"
	"codeshare/internal/websocket"
	"codeshare/pkg/interfaces"
	"codeshare/pkg/types"
)

// HealthChecker reports backing-store health for GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server exposes the REST surface: session and template CRUD, the reset
// endpoint, and health. Real-time traffic goes over the websocket handler,
// not through here.
type Server struct {
	router      *mux.Router
	sessions    *session.Store
	sessionRepo interfaces.SessionRepository
	templates   interfaces.TemplateRepository
	registry    *websocket.Registry
	health      HealthChecker
	resetSecret string
}

func NewServer(
	sessions *session.Store,
	sessionRepo interfaces.SessionRepository,
	templates interfaces.TemplateRepository,
	registry *websocket.Registry,
	health HealthChecker,
	resetSecret string,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		sessions:    sessions,
		sessionRepo: sessionRepo,
		templates:   templates,
		registry:    registry,
		health:      health,
		resetSecret: resetSecret,
	}
	s.routes()
	return s
}

// Router returns the configured mux for mounting into the HTTP server.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(corsMiddleware)

	s.router.HandleFunc("/session", s.handleCreateSession).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/session/{id}", s.handleGetSession).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/session/{id}/join", s.handleJoinCheck).Methods(http.MethodGet, http.MethodOptions)

	s.router.HandleFunc("/templates", s.handleListTemplates).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/template", s.handleCreateTemplate).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/template/{id}", s.handleGetTemplate).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/template/{id}", s.handleUpdateTemplate).Methods(http.MethodPut, http.MethodOptions)

	s.router.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createSessionRequest struct {
	UserID string `json:"userId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !types.IsValidUserID(req.UserID) {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.UserID)
	if err != nil {
		log.Printf("api=create_session error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	log.Printf("api=create_session session_id=%s created_by=%s", sess.ID, req.UserID)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sess.ID})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessionRepo.ListSessions(r.Context())
	if err != nil {
		log.Printf("api=list_sessions error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if !types.IsValidSessionID(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, err := s.sessions.Load(r.Context(), sessionID)
	if err != nil {
		if err == interfaces.ErrSessionNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("api=get_session session_id=%s error=%v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, types.SessionState(sess))
}

type joinCheckResponse struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	IsAdmin   bool   `json:"isAdmin"`
}

// handleJoinCheck lets a client validate a session link (and learn its role)
// before opening the websocket.
func (s *Server) handleJoinCheck(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	userID := r.URL.Query().Get("userId")
	if !types.IsValidSessionID(sessionID) || !types.IsValidUserID(userID) {
		writeError(w, http.StatusBadRequest, "invalid session id or userId")
		return
	}

	sess, err := s.sessions.Load(r.Context(), sessionID)
	if err != nil {
		if err == interfaces.ErrSessionNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("api=join_check session_id=%s error=%v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, joinCheckResponse{
		SessionID: sess.ID,
		UserID:    userID,
		IsAdmin:   sess.IsPrivileged(userID),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.ListTemplates(r.Context())
	if err != nil {
		log.Printf("api=list_templates error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]*types.Template{"templates": templates})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl types.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tmpl.ID = uuid.New().String()
	if err := tmpl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.templates.CreateTemplate(r.Context(), &tmpl); err != nil {
		log.Printf("api=create_template error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to create template")
		return
	}

	log.Printf("api=create_template template_id=%s title=%q", tmpl.ID, tmpl.Title)
	writeJSON(w, http.StatusCreated, &tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := mux.Vars(r)["id"]

	tmpl, err := s.templates.GetTemplate(r.Context(), templateID)
	if err != nil {
		if err == interfaces.ErrTemplateNotFound {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		log.Printf("api=get_template template_id=%s error=%v", templateID, err)
		writeError(w, http.StatusInternalServerError, "failed to load template")
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := mux.Vars(r)["id"]

	var tmpl types.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tmpl.ID = templateID
	if err := tmpl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.templates.UpdateTemplate(r.Context(), &tmpl); err != nil {
		if err == interfaces.ErrTemplateNotFound {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		log.Printf("api=update_template template_id=%s error=%v", templateID, err)
		writeError(w, http.StatusInternalServerError, "failed to update template")
		return
	}
	writeJSON(w, http.StatusOK, &tmpl)
}

type resetResponse struct {
	Deleted int `json:"deleted"`
	Kept    int `json:"kept"`
}

// handleReset deletes stored sessions that have no live connections. Meant
// for a scheduled cleanup job; sessions with participants survive the sweep.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.resetSecret == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.resetSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := s.sessionRepo.ListSessions(r.Context())
	if err != nil {
		log.Printf("api=reset error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	deleted, kept := 0, 0
	for _, sess := range sessions {
		if len(s.registry.ConnectionsInSession(sess.ID)) > 0 {
			kept++
			continue
		}
		if err := s.sessionRepo.DeleteSession(r.Context(), sess.ID); err != nil {
			log.Printf("api=reset session_id=%s error=%v", sess.ID, err)
			kept++
			continue
		}
		s.sessions.Evict(sess.ID)
		deleted++
	}

	log.Printf("api=reset deleted=%d kept=%d", deleted, kept)
	writeJSON(w, http.StatusOK, resetResponse{Deleted: deleted, Kept: kept})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.HealthCheck(r.Context()); err != nil {
		log.Printf("api=health error=%v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	stats := s.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": stats["total_connections"],
		"sessions":    stats["active_sessions"],
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api=write_response error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
