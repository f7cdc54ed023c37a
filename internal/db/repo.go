package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"intake-card/pkg"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Repository wraps database operations for conversation turns, encounters,
// profiles and medical card metadata.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// RecentTurns returns the last limit turns of a thread in chronological order.
func (r *Repository) RecentTurns(ctx context.Context, userID, threadID string, limit int) ([]pkg.ChatTurn, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM (
             SELECT id, role, content, created_at
             FROM chat_messages
             WHERE user_id = $1 AND thread_id = $2
             ORDER BY created_at DESC
             LIMIT $3
         ) recent
         ORDER BY created_at ASC`,
		userID, threadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	turns := make([]pkg.ChatTurn, 0, limit)
	for rows.Next() {
		t := pkg.ChatTurn{UserID: userID, ThreadID: threadID}
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendTurns stores turns in a single transaction.
func (r *Repository) AppendTurns(ctx context.Context, turns []pkg.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return insertTurns(ctx, tx, turns)
	})
}

// CreateEncounter persists an encounter together with any accompanying turns
// and returns the new encounter ID. Nothing is written if any insert fails.
func (r *Repository) CreateEncounter(ctx context.Context, userID, threadID string, data pkg.EncounterData, turns []pkg.ChatTurn) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode encounter: %w", err)
	}
	id := uuid.NewString()
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encounters (id, user_id, thread_id, data)
             VALUES ($1, $2, $3, $4)`,
			id, userID, threadID, payload,
		); err != nil {
			return err
		}
		return insertTurns(ctx, tx, turns)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetEncounter loads a single encounter by ID.
func (r *Repository) GetEncounter(ctx context.Context, id string) (*pkg.EncounterRecord, error) {
	var (
		rec     pkg.EncounterRecord
		payload []byte
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, thread_id, data, created_at
         FROM encounters
         WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.UserID, &rec.ThreadID, &payload, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("encounter %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode encounter %s: %w", id, err)
	}
	return &rec, nil
}

// GetProfile loads the patient profile for a user. Nullable columns come back
// as zero values.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*pkg.PatientProfile, error) {
	var (
		name, gender, language sql.NullString
		birth                  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT full_name, birth_date, gender, language
         FROM profiles
         WHERE id = $1`,
		userID,
	).Scan(&name, &birth, &gender, &language)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	p := &pkg.PatientProfile{
		Name:     name.String,
		Gender:   gender.String,
		Language: language.String,
	}
	if birth.Valid {
		b := birth.Time
		p.BirthDate = &b
	}
	return p, nil
}

// CreateMedicalRecord inserts card metadata and fills in its ID and creation time.
func (r *Repository) CreateMedicalRecord(ctx context.Context, m *pkg.MedicalRecordMeta) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = pkg.RecordStatusActive
	}
	return r.DB.QueryRowContext(ctx,
		`INSERT INTO medical_records (id, user_id, encounter_id, pdf_url, status)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING created_at`,
		m.ID, m.UserID, m.EncounterID, m.PDFURL, string(m.Status),
	).Scan(&m.CreatedAt)
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertTurns(ctx context.Context, tx *sql.Tx, turns []pkg.ChatTurn) error {
	for _, t := range turns {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		created := t.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (id, user_id, thread_id, role, content, created_at)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			id, t.UserID, t.ThreadID, string(t.Role), t.Content, created,
		); err != nil {
			return fmt.Errorf("insert %s turn: %w", t.Role, err)
		}
	}
	return nil
}
