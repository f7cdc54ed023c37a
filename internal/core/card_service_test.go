package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-card/internal/card"
	"intake-card/internal/db"
	"intake-card/pkg"
)

func encounterStore(data pkg.EncounterData) *MockStore {
	return &MockStore{GetEncounterFunc: func(_ context.Context, id string) (*pkg.EncounterRecord, error) {
		return &pkg.EncounterRecord{ID: id, UserID: "u1", Data: data}, nil
	}}
}

func TestGenerateEnrichedCard(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 30, 0, 123000000, time.UTC)
	store := encounterStore(pkg.EncounterData{ChiefComplaint: "headache", SymptomSeverity: "3"})
	blobs := &MockBlobs{}
	composer := &MockComposer{}
	model := &MockLLM{CompleteJSONFunc: func(context.Context, string, string) (string, error) {
		return `{"cc_kor":"두통","cc_eng":"Headache","hpi_kor":"a","hpi_eng":"b","is_emergency":true}`, nil
	}}
	svc := NewCardService(store, NewEnricher(model, 0), composer, blobs, CardConfig{Enrich: true, Now: func() time.Time { return now }})

	res, err := svc.Generate(context.Background(), "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", res.RecordID)
	assert.Equal(t, "https://blobs.example/u1/medical-record-u1-2024-06-15T10-30-00-123Z.pdf?sig=x", res.PDFURL)
	assert.Equal(t, "application/pdf", blobs.ContentType)
	assert.Equal(t, time.Hour, blobs.LastExpiry)
	assert.Len(t, blobs.Objects, 1)

	enriched, ok := composer.LastInput.(card.Enriched)
	require.True(t, ok, "expected enriched input, got %T", composer.LastInput)
	assert.True(t, enriched.Data.IsEmergency)
}

func TestGenerateRawCardWhenEnrichmentDisabled(t *testing.T) {
	data := pkg.EncounterData{ChiefComplaint: "cough"}
	composer := &MockComposer{}
	svc := NewCardService(encounterStore(data), nil, composer, &MockBlobs{}, CardConfig{})

	_, err := svc.Generate(context.Background(), "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, card.Raw{Data: data}, composer.LastInput)
}

func TestGenerateRequiresIDs(t *testing.T) {
	svc := NewCardService(&MockStore{}, nil, &MockComposer{}, &MockBlobs{}, CardConfig{})
	_, err := svc.Generate(context.Background(), "", "e1")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Generate(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGenerateMissingEncounterIsNotFound(t *testing.T) {
	store := &MockStore{GetEncounterFunc: func(_ context.Context, id string) (*pkg.EncounterRecord, error) {
		return nil, fmt.Errorf("encounter %s: %w", id, db.ErrNotFound)
	}}
	blobs := &MockBlobs{}
	svc := NewCardService(store, nil, &MockComposer{}, blobs, CardConfig{})

	_, err := svc.Generate(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, blobs.Objects)
	assert.Zero(t, store.CreateMedicalRecordCallCount)
}

func TestGenerateRejectsEncounterOfAnotherUser(t *testing.T) {
	store := encounterStore(pkg.EncounterData{ChiefComplaint: "headache"})
	blobs := &MockBlobs{}
	composer := &MockComposer{}
	svc := NewCardService(store, nil, composer, blobs, CardConfig{})

	_, err := svc.Generate(context.Background(), "u2", "e1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, composer.LastInput)
	assert.Empty(t, blobs.Objects)
	assert.Zero(t, store.CreateMedicalRecordCallCount)
}

func TestGenerateProfileFailureIsStoreError(t *testing.T) {
	store := &MockStore{GetProfileFunc: func(context.Context, string) (*pkg.PatientProfile, error) {
		return nil, errors.New("connection reset")
	}}
	svc := NewCardService(store, nil, &MockComposer{}, &MockBlobs{}, CardConfig{})

	_, err := svc.Generate(context.Background(), "u1", "e1")
	assert.ErrorIs(t, err, ErrUpstreamStore)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGenerateUploadFailureRecordsNothing(t *testing.T) {
	store := encounterStore(pkg.EncounterData{})
	svc := NewCardService(store, nil, &MockComposer{}, &MockBlobs{PutErr: errors.New("bucket gone")}, CardConfig{})

	_, err := svc.Generate(context.Background(), "u1", "e1")
	assert.ErrorIs(t, err, ErrUpstreamStore)
	assert.Zero(t, store.CreateMedicalRecordCallCount)
}

func TestGenerateRecordFailureRemovesUpload(t *testing.T) {
	store := encounterStore(pkg.EncounterData{})
	store.CreateMedicalRecordFunc = func(context.Context, *pkg.MedicalRecordMeta) error { return errors.New("fk violation") }
	blobs := &MockBlobs{}
	svc := NewCardService(store, nil, &MockComposer{}, blobs, CardConfig{})

	_, err := svc.Generate(context.Background(), "u1", "e1")
	assert.ErrorIs(t, err, ErrUpstreamStore)
	assert.Len(t, blobs.Deleted, 1)
	assert.Empty(t, blobs.Objects)
}

func TestGenerateRenderFailure(t *testing.T) {
	svc := NewCardService(encounterStore(pkg.EncounterData{}), nil, &MockComposer{Err: errors.New("font")}, &MockBlobs{}, CardConfig{})
	_, err := svc.Generate(context.Background(), "u1", "e1")
	assert.ErrorIs(t, err, ErrRender)
}

func TestGenerateWithRealComposer(t *testing.T) {
	blobs := &MockBlobs{}
	svc := NewCardService(encounterStore(pkg.EncounterData{}), nil, card.NewComposer(nil), blobs, CardConfig{})

	res, err := svc.Generate(context.Background(), "u1", "e1")
	require.NoError(t, err)
	for key, doc := range blobs.Objects {
		assert.True(t, strings.HasPrefix(key, "u1/medical-record-u1-"))
		assert.True(t, strings.HasPrefix(string(doc), "%PDF-"))
	}
	assert.NotEmpty(t, res.PDFURL)
}

func TestObjectKeyEscapesUserID(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "a%2Fb/medical-record-a%2Fb-2024-01-02T03-04-05-000Z.pdf", ObjectKey("a/b", now))
}
