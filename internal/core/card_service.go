package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"intake-card/internal/card"
	"intake-card/internal/db"
	"intake-card/internal/storage"
	"intake-card/internal/util"
	"intake-card/pkg"
)

const (
	// DefaultSignedURLTTL is how long a card download link stays valid.
	DefaultSignedURLTTL = time.Hour
	pdfContentType      = "application/pdf"
)

// CardStore reads profiles and encounters and records finished cards.
// *db.Repository implements it.
type CardStore interface {
	GetProfile(ctx context.Context, userID string) (*pkg.PatientProfile, error)
	GetEncounter(ctx context.Context, id string) (*pkg.EncounterRecord, error)
	CreateMedicalRecord(ctx context.Context, m *pkg.MedicalRecordMeta) error
}

// CardComposer renders a card document. *card.Composer implements it.
type CardComposer interface {
	Compose(profile pkg.PatientProfile, in card.Input, now time.Time) ([]byte, error)
}

// CardConfig tunes card generation.
type CardConfig struct {
	// Enrich selects the bilingual model-structured layout; otherwise the raw
	// encounter is rendered directly.
	Enrich        bool
	SignedURLTTL  time.Duration
	UploadTimeout time.Duration
	Now           func() time.Time
}

// CardResult is the outcome of a successful card generation.
type CardResult struct {
	PDFURL   string
	RecordID string
}

// CardService generates medical cards: it loads the profile and encounter,
// optionally enriches the encounter, renders the PDF, uploads it and records
// the signed link.
type CardService struct {
	Store    CardStore
	Enricher *Enricher
	Composer CardComposer
	Blobs    storage.ObjectStore
	cfg      CardConfig
}

// NewCardService constructs a CardService.
func NewCardService(store CardStore, enricher *Enricher, composer CardComposer, blobs storage.ObjectStore, cfg CardConfig) *CardService {
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = DefaultSignedURLTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CardService{Store: store, Enricher: enricher, Composer: composer, Blobs: blobs, cfg: cfg}
}

// Generate renders and publishes the card for an encounter.
func (s *CardService) Generate(ctx context.Context, userID, encounterID string) (*CardResult, error) {
	if userID == "" || encounterID == "" {
		return nil, fmt.Errorf("%w: user_id and encounter_id are required", ErrInvalidRequest)
	}
	logger := util.LoggerFromContext(ctx).With("user_id", userID, "encounter_id", encounterID)

	profile, err := s.Store.GetProfile(ctx, userID)
	if err != nil {
		logger.Error("fetch profile failed", "err", err)
		return nil, storeError("fetch profile", err)
	}
	encounter, err := s.Store.GetEncounter(ctx, encounterID)
	if err != nil {
		logger.Error("fetch encounter failed", "err", err)
		return nil, storeError("fetch encounter", err)
	}
	if encounter.UserID != userID {
		logger.Warn("encounter belongs to another user", "owner", encounter.UserID)
		return nil, fmt.Errorf("%w: encounter %s for user %s", ErrNotFound, encounterID, userID)
	}

	var in card.Input = card.Raw{Data: encounter.Data}
	if s.cfg.Enrich && s.Enricher != nil {
		data, fromModel := s.Enricher.Enrich(ctx, encounter.Data)
		logger.Debug("card data enriched", "from_model", fromModel, "is_emergency", data.IsEmergency)
		in = card.Enriched{Data: data}
	}

	now := s.cfg.Now()
	doc, err := s.Composer.Compose(*profile, in, now)
	if err != nil {
		logger.Error("compose card failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	key := ObjectKey(userID, now)
	uploadCtx, cancel := withTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()
	if err := s.Blobs.Put(uploadCtx, key, bytes.NewReader(doc), int64(len(doc)), pdfContentType); err != nil {
		logger.Error("upload card failed", "key", key, "err", err)
		return nil, fmt.Errorf("%w: upload card: %w", ErrUpstreamStore, err)
	}
	signed, err := s.Blobs.PresignGet(uploadCtx, key, s.cfg.SignedURLTTL)
	if err != nil {
		logger.Error("sign card url failed", "key", key, "err", err)
		return nil, fmt.Errorf("%w: sign card url: %w", ErrUpstreamStore, err)
	}

	meta := &pkg.MedicalRecordMeta{
		UserID:      userID,
		EncounterID: encounterID,
		PDFURL:      signed,
		Status:      pkg.RecordStatusActive,
	}
	if err := s.Store.CreateMedicalRecord(ctx, meta); err != nil {
		logger.Error("record card failed", "err", err)
		if derr := s.Blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			logger.Warn("remove orphaned card failed", "key", key, "err", derr)
		}
		return nil, fmt.Errorf("%w: record card: %w", ErrUpstreamStore, err)
	}
	logger.Info("medical card generated", "record_id", meta.ID, "key", key)
	return &CardResult{PDFURL: signed, RecordID: meta.ID}, nil
}

// ObjectKey is the blob path of a card: {user}/medical-record-{user}-{ts}.pdf
// where ts is the UTC millisecond timestamp with ':' and '.' replaced by '-'.
func ObjectKey(userID string, now time.Time) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(now.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	user := url.PathEscape(userID)
	return fmt.Sprintf("%s/medical-record-%s-%s.pdf", user, user, ts)
}

func storeError(step string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, step, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamStore, step, err)
}
