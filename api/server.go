package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/service"
	"github.com/wricardo/mindmeld/game/session"
	"github.com/wricardo/mindmeld/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	ws      *websocket.Handler
	router  *mux.Router
	log     logrus.FieldLogger
}

// NewServer creates a new API server
func NewServer(gameService service.GameService, ws *websocket.Handler, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		service: gameService,
		ws:      ws,
		router:  mux.NewRouter(),
		log:     log.WithField("component", "api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Games; the fixed paths must come before the {code} pattern
	api.HandleFunc("/games/create", s.handleCreateGame).Methods("POST")
	api.HandleFunc("/games/list", s.handleListGames).Methods("GET")
	if s.ws != nil {
		api.HandleFunc("/games/join", s.ws.HandleWebSocket).Methods("GET")
	}
	api.HandleFunc("/games/{code}", s.handleGetGame).Methods("GET")
	api.HandleFunc("/games/{code}", s.handleDeleteGame).Methods("DELETE")
}

// MountMCP serves MCP JSON-RPC messages at /mcp.
func (s *Server) MountMCP(h http.Handler) {
	s.router.Handle("/mcp", h).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// classify maps an error to its HTTP status and wire code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidCode):
		return http.StatusBadRequest, websocket.CodeInvalidCode
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, websocket.CodeNotFound
	case errors.Is(err, session.ErrCreationFailed):
		return http.StatusInternalServerError, websocket.CodeCreationFailed
	default:
		return http.StatusInternalServerError, websocket.ErrorCode(err)
	}
}

func codeParam(r *http.Request) (int, error) {
	return engine.ParseCode(mux.Vars(r)["code"])
}

// Game Handlers

// CreateResponse is returned by POST /api/games/create.
type CreateResponse struct {
	Code int `json:"code"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.CreateSession(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateResponse{Code: info.Code})
}

// GameSummary is one entry of the game list.
type GameSummary struct {
	Code        int              `json:"code"`
	PlayersNum  int              `json:"players_num"`
	Phase       engine.PhaseKind `json:"phase"`
	Pending     int              `json:"pending"`
	Connections int              `json:"connections"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ListResponse is returned by GET /api/games/list.
type ListResponse struct {
	Count int           `json:"count"`
	Games []GameSummary `json:"games"`
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	// Parse query parameters
	query := r.URL.Query()
	sortBy := query.Get("sort")    // "code" (default), "created"
	order := query.Get("order")    // "asc" (default), "desc"
	phase := query.Get("phase")    // only games in this phase
	limitStr := query.Get("limit") // number of games to return

	if phase != "" {
		kind, err := engine.ParsePhaseKind(phase)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_phase"})
			return
		}
		filtered := sessions[:0]
		for _, info := range sessions {
			if info.Phase == kind {
				filtered = append(filtered, info)
			}
		}
		sessions = filtered
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		less := sessions[i].Code < sessions[j].Code
		if sortBy == "created" {
			less = sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		if order == "desc" {
			return !less
		}
		return less
	})

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l >= 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	games := make([]GameSummary, 0, len(sessions))
	for _, info := range sessions {
		games = append(games, GameSummary{
			Code:        info.Code,
			PlayersNum:  info.PlayersNum,
			Phase:       info.Phase,
			Pending:     info.Pending,
			Connections: info.Connections,
			CreatedAt:   info.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, ListResponse{Count: len(games), Games: games})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	code, err := codeParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	info, err := s.service.GetSession(r.Context(), code)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	code, err := codeParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.service.DeleteSession(r.Context(), code); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Game %d deleted", code),
	})
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Request logging

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start),
		}).Debug("Request handled")
	})
}
