package core

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"intake-card/internal/card"
	"intake-card/internal/llm"
	"intake-card/internal/storage"
	"intake-card/pkg"
)

var (
	_ llm.Client          = (*MockLLM)(nil)
	_ IntakeStore         = (*MockStore)(nil)
	_ CardStore           = (*MockStore)(nil)
	_ storage.ObjectStore = (*MockBlobs)(nil)
	_ CardComposer        = (*MockComposer)(nil)
)

// MockLLM is a function-field fake of llm.Client.
type MockLLM struct {
	ChatFunc         func(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Completion, error)
	CompleteJSONFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	LastMessages []llm.Message
	LastTools    []llm.Tool
}

func (m *MockLLM) Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Completion, error) {
	m.LastMessages = messages
	m.LastTools = tools
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages, tools)
	}
	return nil, errors.New("ChatFunc not implemented in mock")
}

func (m *MockLLM) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.CompleteJSONFunc != nil {
		return m.CompleteJSONFunc(ctx, systemPrompt, userPrompt)
	}
	return "", errors.New("CompleteJSONFunc not implemented in mock")
}

// MockStore fakes the repository for both services.
type MockStore struct {
	RecentTurnsFunc         func(ctx context.Context, userID, threadID string, limit int) ([]pkg.ChatTurn, error)
	AppendTurnsFunc         func(ctx context.Context, turns []pkg.ChatTurn) error
	CreateEncounterFunc     func(ctx context.Context, userID, threadID string, data pkg.EncounterData, turns []pkg.ChatTurn) (string, error)
	GetProfileFunc          func(ctx context.Context, userID string) (*pkg.PatientProfile, error)
	GetEncounterFunc        func(ctx context.Context, id string) (*pkg.EncounterRecord, error)
	CreateMedicalRecordFunc func(ctx context.Context, m *pkg.MedicalRecordMeta) error

	CreateEncounterCallCount     int32
	AppendTurnsCallCount         int32
	CreateMedicalRecordCallCount int32
	AppendedTurns                []pkg.ChatTurn
	EncounterTurns               []pkg.ChatTurn
}

func (m *MockStore) RecentTurns(ctx context.Context, userID, threadID string, limit int) ([]pkg.ChatTurn, error) {
	if m.RecentTurnsFunc != nil {
		return m.RecentTurnsFunc(ctx, userID, threadID, limit)
	}
	return nil, nil
}

func (m *MockStore) AppendTurns(ctx context.Context, turns []pkg.ChatTurn) error {
	atomic.AddInt32(&m.AppendTurnsCallCount, 1)
	m.AppendedTurns = append(m.AppendedTurns, turns...)
	if m.AppendTurnsFunc != nil {
		return m.AppendTurnsFunc(ctx, turns)
	}
	return nil
}

func (m *MockStore) CreateEncounter(ctx context.Context, userID, threadID string, data pkg.EncounterData, turns []pkg.ChatTurn) (string, error) {
	atomic.AddInt32(&m.CreateEncounterCallCount, 1)
	m.EncounterTurns = turns
	if m.CreateEncounterFunc != nil {
		return m.CreateEncounterFunc(ctx, userID, threadID, data, turns)
	}
	return "enc-1", nil
}

func (m *MockStore) GetProfile(ctx context.Context, userID string) (*pkg.PatientProfile, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, userID)
	}
	return &pkg.PatientProfile{}, nil
}

func (m *MockStore) GetEncounter(ctx context.Context, id string) (*pkg.EncounterRecord, error) {
	if m.GetEncounterFunc != nil {
		return m.GetEncounterFunc(ctx, id)
	}
	return &pkg.EncounterRecord{ID: id}, nil
}

func (m *MockStore) CreateMedicalRecord(ctx context.Context, meta *pkg.MedicalRecordMeta) error {
	atomic.AddInt32(&m.CreateMedicalRecordCallCount, 1)
	if m.CreateMedicalRecordFunc != nil {
		return m.CreateMedicalRecordFunc(ctx, meta)
	}
	meta.ID = "rec-1"
	return nil
}

// MockNotifier records notified encounter IDs.
type MockNotifier struct {
	IDs []string
	Err error
}

func (m *MockNotifier) Notify(_ context.Context, encounterID string) error {
	m.IDs = append(m.IDs, encounterID)
	return m.Err
}

// MockBlobs is an in-memory ObjectStore.
type MockBlobs struct {
	Objects     map[string][]byte
	ContentType string
	PutErr      error
	PresignErr  error
	Deleted     []string
	LastExpiry  time.Duration
}

func (m *MockBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.Objects == nil {
		m.Objects = map[string][]byte{}
	}
	m.Objects[key] = data
	m.ContentType = contentType
	return nil
}

func (m *MockBlobs) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	if m.PresignErr != nil {
		return "", m.PresignErr
	}
	m.LastExpiry = expiry
	return "https://blobs.example/" + key + "?sig=x", nil
}

func (m *MockBlobs) Delete(_ context.Context, key string) error {
	m.Deleted = append(m.Deleted, key)
	delete(m.Objects, key)
	return nil
}

// MockComposer captures the input it was asked to render.
type MockComposer struct {
	LastProfile pkg.PatientProfile
	LastInput   card.Input
	Err         error
}

func (m *MockComposer) Compose(profile pkg.PatientProfile, in card.Input, _ time.Time) ([]byte, error) {
	m.LastProfile = profile
	m.LastInput = in
	if m.Err != nil {
		return nil, m.Err
	}
	return []byte("%PDF-1.3 fake"), nil
}
