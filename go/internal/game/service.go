package game

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/sessions"
	"github.com/rs/zerolog/log"
)

// AdminTokenHeader carries the admin token on admin routes.
const AdminTokenHeader = "X-Admin-Token"

// GameApp defines what the service layer needs from the game application
type GameApp interface {
	RecordDecision(ctx context.Context, participantID uuid.UUID, round int, choice models.Choice) (*models.Decision, error)
	GetRoundStatus(ctx context.Context, sessionID uuid.UUID, round int) (*RoundStatus, error)
	GetParticipantState(ctx context.Context, participantID uuid.UUID) (*ParticipantView, error)
	GetRevealSnapshot(ctx context.Context, sessionID uuid.UUID, round int) (*RevealSnapshot, error)
	GetCostPreview(ctx context.Context, participantID uuid.UUID) (*CostPreview, error)
}

// SessionsApp defines what the service layer needs from the session registry
type SessionsApp interface {
	CreateSession(ctx context.Context, req sessions.CreateSessionRequest) (*sessions.CreatedSession, error)
	ListSessions(ctx context.Context) ([]sessions.SessionSummary, error)
	Monitor(ctx context.Context, sessionID uuid.UUID) (*sessions.MonitorView, error)
	Archive(ctx context.Context, sessionID uuid.UUID) error
	Reset(ctx context.Context, sessionID uuid.UUID) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
	Join(ctx context.Context, code, alias string) (*models.Participant, error)
	SetAlias(ctx context.Context, participantID uuid.UUID, alias string) (*models.Participant, error)
	LobbyStatus(ctx context.Context, participantID uuid.UUID) (*sessions.LobbyStatus, error)
}

// Service exposes the game and the session registry as JSON over HTTP
type Service struct {
	game       GameApp
	sessions   SessionsApp
	adminToken string
}

// NewService creates a new game HTTP service
func NewService(game GameApp, sessions SessionsApp, adminToken string) *Service {
	return &Service{
		game:       game,
		sessions:   sessions,
		adminToken: adminToken,
	}
}

// Register mounts every route on mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/join", s.handleJoin)
	mux.HandleFunc("GET /api/participants/{id}/state", s.handleState)
	mux.HandleFunc("GET /api/participants/{id}/lobby", s.handleLobby)
	mux.HandleFunc("GET /api/participants/{id}/preview", s.handlePreview)
	mux.HandleFunc("POST /api/participants/{id}/alias", s.handleAlias)
	mux.HandleFunc("POST /api/participants/{id}/decisions", s.handleDecision)
	mux.HandleFunc("GET /api/sessions/{id}/rounds/{round}/status", s.handleRoundStatus)
	mux.HandleFunc("GET /api/sessions/{id}/rounds/{round}/reveal", s.handleReveal)

	mux.Handle("POST /api/admin/sessions", s.admin(s.handleCreateSession))
	mux.Handle("GET /api/admin/sessions", s.admin(s.handleListSessions))
	mux.Handle("GET /api/admin/sessions/{id}/monitor", s.admin(s.handleMonitor))
	mux.Handle("POST /api/admin/sessions/{id}/reset", s.admin(s.handleReset))
	mux.Handle("POST /api/admin/sessions/{id}/archive", s.admin(s.handleArchive))
	mux.Handle("DELETE /api/admin/sessions/{id}", s.admin(s.handleDelete))
}

func (s *Service) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(AdminTokenHeader)
		if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "admin token required"})
			return
		}
		next(w, r)
	})
}

type errorBody struct {
	Error string       `json:"error"`
	State models.State `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError picks the status from the error class.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	var mismatch *gameerr.StateMismatchError
	if errors.As(err, &mismatch) {
		body.State = mismatch.Got
	}

	status := http.StatusInternalServerError
	switch {
	case gameerr.IsNotFound(err):
		status = http.StatusNotFound
	case gameerr.IsValidation(err):
		status = http.StatusBadRequest
	case gameerr.IsConflict(err):
		status = http.StatusConflict
	case gameerr.IsContention(err):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, gameerr.Validationf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func pathRound(r *http.Request) (int, error) {
	round, err := strconv.Atoi(r.PathValue("round"))
	if err != nil || round < 1 {
		return 0, gameerr.Validationf("invalid round %q", r.PathValue("round"))
	}
	return round, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &gameerr.ValidationError{Msg: "malformed request body", Err: err}
	}
	return nil
}

type joinRequest struct {
	Code  string `json:"code"`
	Alias string `json:"alias"`
}

func (s *Service) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.sessions.Join(r.Context(), req.Code, req.Alias)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.game.GetParticipantState(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleLobby(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.sessions.LobbyStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	preview, err := s.game.GetCostPreview(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type aliasRequest struct {
	Alias string `json:"alias"`
}

func (s *Service) handleAlias(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req aliasRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.sessions.SetAlias(r.Context(), id, req.Alias)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type decisionRequest struct {
	Round  int           `json:"round"`
	Choice models.Choice `json:"choice"`
}

func (s *Service) handleDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req decisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.game.RecordDecision(r.Context(), id, req.Round, req.Choice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Service) handleRoundStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	round, err := pathRound(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.game.GetRoundStatus(r.Context(), id, round)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Service) handleReveal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	round, err := pathRound(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.game.GetRevealSnapshot(r.Context(), id, round)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type createSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	JoinCodes []string  `json:"join_codes"`
	*sessions.CreatedSession
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessions.CreateSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.sessions.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:      created.Session.ID,
		JoinCodes:      created.JoinCodes(),
		CreatedSession: created,
	})
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Service) handleMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.sessions.Monitor(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) adminAction(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context, uuid.UUID) error) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": fmt.Sprintf("%s ok", name), "session_id": id.String()})
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, "reset", s.sessions.Reset)
}

func (s *Service) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, "archive", s.sessions.Archive)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, "delete", s.sessions.Delete)
}
