package pkg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role describes who authored a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of an intake conversation, keyed by user and thread.
type ChatTurn struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// EncounterData is the five-field symptom summary produced by the intake
// interview. All fields are required by the save_encounter tool schema.
type EncounterData struct {
	ChiefComplaint     string   `json:"chief_complaint"`
	SymptomOnset       string   `json:"symptom_onset"`
	SymptomSeverity    string   `json:"symptom_severity"`
	AssociatedSymptoms []string `json:"associated_symptoms"`
	Concerns           string   `json:"concerns"`
}

// EncounterRecord is a persisted EncounterData. Records are never updated.
type EncounterRecord struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	ThreadID  string        `json:"thread_id"`
	Data      EncounterData `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
}

// PatientProfile is the externally owned profile rendered on the card.
// Empty fields are displayed with placeholders.
type PatientProfile struct {
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	Name      string     `json:"name,omitempty"`
	Language  string     `json:"language,omitempty"`
}

// StructuredCardData is the bilingual card payload produced by enrichment
// (or by the local fallback when the model output is unusable).
type StructuredCardData struct {
	CCKor            string `json:"cc_kor"`
	CCEng            string `json:"cc_eng"`
	HPIKor           string `json:"hpi_kor"`
	HPIEng           string `json:"hpi_eng"`
	PainScore        Score  `json:"pain_score"`
	AllergiesKor     string `json:"allergies_kor"`
	AllergiesEng     string `json:"allergies_eng"`
	SuggestedDeptKor string `json:"suggested_dept_kor"`
	SuggestedDeptEng string `json:"suggested_dept_eng"`
	IsEmergency      bool   `json:"is_emergency"`
}

// Score is a 0-10 pain score that may be absent. It decodes from a JSON
// number, a numeric string or null.
type Score struct {
	Value float64
	Valid bool
}

// NewScore returns a valid score.
func NewScore(v float64) Score { return Score{Value: v, Valid: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = Score{}
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			*s = Score{}
			return nil
		}
		*s = NewScore(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("pain_score: %w", err)
	}
	*s = NewScore(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// String renders the score without a trailing ".0" for whole numbers.
func (s Score) String() string {
	if !s.Valid {
		return ""
	}
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

// RecordStatus is the lifecycle state of a medical card.
type RecordStatus string

const RecordStatusActive RecordStatus = "active"

// MedicalRecordMeta points at a rendered medical card in blob storage.
type MedicalRecordMeta struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	EncounterID string       `json:"encounter_id"`
	PDFURL      string       `json:"pdf_url"`
	Status      RecordStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Usage reports token accounting for a model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
