package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"intake-card/internal/core"
	"intake-card/internal/util"
	"intake-card/pkg"
)

const maxBodyBytes = 1 << 20

// IntakeReplier answers one patient utterance. *core.ChatService implements it.
type IntakeReplier interface {
	Reply(ctx context.Context, req core.IntakeRequest) (*core.IntakeResult, error)
}

// CardGenerator produces a signed card link. *core.CardService implements it.
type CardGenerator interface {
	Generate(ctx context.Context, userID, encounterID string) (*core.CardResult, error)
}

// Server bundles together the dependencies required by HTTP handlers. It
// implements http.Handler so it can be passed to http.Server.
type Server struct {
	Chat   IntakeReplier
	Cards  CardGenerator
	router chi.Router
}

// NewServer constructs a Server with routes and middleware configured.
func NewServer(chat IntakeReplier, cards CardGenerator) *Server {
	s := &Server{Chat: chat, Cards: cards}
	r := chi.NewRouter()
	r.Use(util.WithRequestID)
	r.Use(util.WithRequestLog)
	r.Use(middleware.Recoverer)
	r.Use(util.WithCORS)

	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/generate-card", s.handleGenerateCard)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = r
	return s
}

// ServeHTTP dispatches to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	ThreadID  string `json:"thread_id"`
	UserInput string `json:"user_input"`
}

type assistantMessage struct {
	Role    pkg.Role `json:"role"`
	Content string   `json:"content"`
}

type choice struct {
	Message assistantMessage `json:"message"`
}

type chatResponse struct {
	Choices []choice   `json:"choices"`
	Usage   *pkg.Usage `json:"usage"`
}

type encounterResponse struct {
	EncounterID string             `json:"encounter_id"`
	Encounter   *pkg.EncounterData `json:"encounter"`
	Choices     []choice           `json:"choices"`
}

// handleChat runs one step of the intake interview. The response is either a
// plain assistant reply or, once the model saves the encounter, the new
// encounter id with its data and a confirmation message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.Chat.Reply(r.Context(), core.IntakeRequest{
		UserID:    req.UserID,
		ThreadID:  req.ThreadID,
		UserInput: req.UserInput,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	choices := []choice{{Message: assistantMessage{Role: pkg.RoleAssistant, Content: res.Reply}}}
	if res.Terminal() {
		writeJSON(w, http.StatusOK, encounterResponse{
			EncounterID: res.EncounterID,
			Encounter:   res.Encounter,
			Choices:     choices,
		})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Choices: choices, Usage: res.Usage})
}

type cardRequest struct {
	UserID      string `json:"user_id"`
	EncounterID string `json:"encounter_id"`
}

type cardResponse struct {
	PDFURL   string `json:"pdf_url"`
	RecordID string `json:"record_id"`
}

func (s *Server) handleGenerateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.Cards.Generate(r.Context(), req.UserID, req.EncounterID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponse{PDFURL: res.PDFURL, RecordID: res.RecordID})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
