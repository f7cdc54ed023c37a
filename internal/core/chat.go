package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"intake-card/internal/llm"
	"intake-card/internal/util"
	"intake-card/pkg"
)

// SaveEncounterToolName is the only tool offered during the intake interview.
const SaveEncounterToolName = "save_encounter"

// DefaultHistoryLimit is the number of prior turns sent with each request.
const DefaultHistoryLimit = 20

// SaveEncounterTool declares the five encounter fields, all required.
var SaveEncounterTool = llm.Tool{
	Name:        SaveEncounterToolName,
	Description: "Save the patient's symptom information once all four intake questions are answered.",
	Parameters: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"chief_complaint":  {Type: jsonschema.String},
			"symptom_onset":    {Type: jsonschema.String},
			"symptom_severity": {Type: jsonschema.String},
			"associated_symptoms": {
				Type:  jsonschema.Array,
				Items: &jsonschema.Definition{Type: jsonschema.String},
			},
			"concerns": {Type: jsonschema.String},
		},
		Required: []string{
			"chief_complaint",
			"symptom_onset",
			"symptom_severity",
			"associated_symptoms",
			"concerns",
		},
	},
}

// IntakeStore is the conversation and encounter storage used by the intake
// protocol. *db.Repository implements it.
type IntakeStore interface {
	RecentTurns(ctx context.Context, userID, threadID string, limit int) ([]pkg.ChatTurn, error)
	AppendTurns(ctx context.Context, turns []pkg.ChatTurn) error
	CreateEncounter(ctx context.Context, userID, threadID string, data pkg.EncounterData, turns []pkg.ChatTurn) (string, error)
}

// EncounterNotifier is told about every committed encounter.
type EncounterNotifier interface {
	Notify(ctx context.Context, encounterID string) error
}

// IntakeConfig tunes the intake protocol.
type IntakeConfig struct {
	SystemPrompt string
	HistoryLimit int
	// PersistTurns writes the user utterance and the assistant reply back to
	// the conversation store.
	PersistTurns bool
	// Timeout bounds the model call; zero means no extra bound.
	Timeout time.Duration
	Now     func() time.Time
}

// IntakeRequest is one patient utterance in a thread.
type IntakeRequest struct {
	UserID    string
	ThreadID  string
	UserInput string
}

// IntakeResult is either a conversational reply or, when EncounterID is set,
// the terminal saved encounter.
type IntakeResult struct {
	Reply       string
	EncounterID string
	Encounter   *pkg.EncounterData
	Usage       *pkg.Usage
}

// Terminal reports whether the interview finished with a saved encounter.
func (r *IntakeResult) Terminal() bool { return r.EncounterID != "" }

// ChatService runs the intake interview: it forwards each patient message to
// the model with the recent history and saves an encounter once the model
// calls save_encounter.
type ChatService struct {
	LLM      llm.Client
	Store    IntakeStore
	Notifier EncounterNotifier
	cfg      IntakeConfig
}

// NewChatService constructs a new ChatService.
func NewChatService(client llm.Client, store IntakeStore, notifier EncounterNotifier, cfg IntakeConfig) *ChatService {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ChatService{LLM: client, Store: store, Notifier: notifier, cfg: cfg}
}

// Reply processes one patient utterance.
func (s *ChatService) Reply(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	// Identifiers are stored exactly as sent; only absent values are rejected.
	if req.UserID == "" || req.ThreadID == "" || req.UserInput == "" {
		return nil, fmt.Errorf("%w: user_id, thread_id and user_input are required", ErrInvalidRequest)
	}
	logger := util.LoggerFromContext(ctx).With("user_id", req.UserID, "thread_id", req.ThreadID)

	history, err := s.Store.RecentTurns(ctx, req.UserID, req.ThreadID, s.cfg.HistoryLimit)
	if err != nil {
		logger.Error("fetch history failed", "err", err)
		return nil, fmt.Errorf("%w: fetch history: %w", ErrUpstreamStore, err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: string(pkg.RoleSystem), Content: s.cfg.SystemPrompt})
	for _, t := range history {
		messages = append(messages, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: string(pkg.RoleUser), Content: req.UserInput})

	callCtx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	userAt := s.cfg.Now()
	comp, err := s.LLM.Chat(callCtx, messages, []llm.Tool{SaveEncounterTool})
	if err != nil {
		logger.Error("model call failed", "err", err)
		return nil, fmt.Errorf("%w: chat completion: %w", ErrUpstreamGateway, err)
	}

	var text string
	switch reply := comp.Reply.(type) {
	case llm.ToolCallReply:
		call, ignored := firstCall(reply.Calls, SaveEncounterToolName)
		if len(ignored) > 0 {
			logger.Warn("ignoring extra tool calls", "count", len(ignored), "names", ignored)
		}
		if call != nil {
			return s.saveEncounter(ctx, logger, req, call.Arguments, userAt)
		}
		text = reply.Content
	case llm.TextReply:
		text = reply.Content
	}

	if s.cfg.PersistTurns {
		if err := s.Store.AppendTurns(ctx, s.turns(req, userAt, text)); err != nil {
			logger.Error("persist turns failed", "err", err)
			return nil, fmt.Errorf("%w: persist turns: %w", ErrUpstreamStore, err)
		}
	}
	return &IntakeResult{Reply: text, Usage: comp.Usage}, nil
}

func (s *ChatService) saveEncounter(ctx context.Context, logger *slog.Logger, req IntakeRequest, arguments string, userAt time.Time) (*IntakeResult, error) {
	data, err := DecodeEncounter(arguments)
	if err != nil {
		logger.Error("malformed save_encounter arguments", "err", err)
		return nil, err
	}
	var turns []pkg.ChatTurn
	if s.cfg.PersistTurns {
		turns = s.turns(req, userAt, ConfirmationMessage)
	}
	id, err := s.Store.CreateEncounter(ctx, req.UserID, req.ThreadID, data, turns)
	if err != nil {
		logger.Error("save encounter failed", "err", err)
		return nil, fmt.Errorf("%w: save encounter: %w", ErrUpstreamStore, err)
	}
	logger.Info("encounter saved", "encounter_id", id)
	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, id); err != nil {
			logger.Warn("encounter notify failed", "encounter_id", id, "err", err)
		}
	}
	return &IntakeResult{Reply: ConfirmationMessage, EncounterID: id, Encounter: &data}, nil
}

// turns builds the user turn and, when non-empty, the assistant turn. The
// assistant turn is stamped after the user turn so history order is stable.
func (s *ChatService) turns(req IntakeRequest, userAt time.Time, reply string) []pkg.ChatTurn {
	out := []pkg.ChatTurn{{
		UserID: req.UserID, ThreadID: req.ThreadID,
		Role: pkg.RoleUser, Content: req.UserInput, CreatedAt: userAt,
	}}
	if reply != "" {
		replyAt := s.cfg.Now()
		if !replyAt.After(userAt) {
			replyAt = userAt.Add(time.Millisecond)
		}
		out = append(out, pkg.ChatTurn{
			UserID: req.UserID, ThreadID: req.ThreadID,
			Role: pkg.RoleAssistant, Content: reply, CreatedAt: replyAt,
		})
	}
	return out
}

// firstCall returns the first call named name and the names of every other call.
func firstCall(calls []llm.ToolCall, name string) (*llm.ToolCall, []string) {
	var (
		found   *llm.ToolCall
		ignored []string
	)
	for i := range calls {
		if found == nil && calls[i].Name == name {
			found = &calls[i]
			continue
		}
		ignored = append(ignored, calls[i].Name)
	}
	return found, ignored
}

type encounterArgs struct {
	ChiefComplaint     *string   `json:"chief_complaint"`
	SymptomOnset       *string   `json:"symptom_onset"`
	SymptomSeverity    *string   `json:"symptom_severity"`
	AssociatedSymptoms *[]string `json:"associated_symptoms"`
	Concerns           *string   `json:"concerns"`
}

// DecodeEncounter parses save_encounter arguments. Every schema field must be
// present.
func DecodeEncounter(arguments string) (pkg.EncounterData, error) {
	var args encounterArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return pkg.EncounterData{}, fmt.Errorf("%w: save_encounter arguments: %w", ErrMalformedModelOutput, err)
	}
	var missing []string
	if args.ChiefComplaint == nil {
		missing = append(missing, "chief_complaint")
	}
	if args.SymptomOnset == nil {
		missing = append(missing, "symptom_onset")
	}
	if args.SymptomSeverity == nil {
		missing = append(missing, "symptom_severity")
	}
	if args.AssociatedSymptoms == nil {
		missing = append(missing, "associated_symptoms")
	}
	if args.Concerns == nil {
		missing = append(missing, "concerns")
	}
	if len(missing) > 0 {
		return pkg.EncounterData{}, fmt.Errorf("%w: save_encounter missing %s", ErrMalformedModelOutput, strings.Join(missing, ", "))
	}
	return pkg.EncounterData{
		ChiefComplaint:     *args.ChiefComplaint,
		SymptomOnset:       *args.SymptomOnset,
		SymptomSeverity:    *args.SymptomSeverity,
		AssociatedSymptoms: *args.AssociatedSymptoms,
		Concerns:           *args.Concerns,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
