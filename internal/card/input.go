package card

import (
	"fmt"
	"strings"

	"intake-card/pkg"
)

// Input is the card payload: Raw for a bare encounter, Enriched for the
// bilingual structured data.
type Input interface {
	cardInput()
}

// Raw renders directly from the five intake fields.
type Raw struct {
	Data pkg.EncounterData
}

// Enriched renders from model-structured bilingual data.
type Enriched struct {
	Data pkg.StructuredCardData
}

func (Raw) cardInput()      {}
func (Enriched) cardInput() {}

// Display placeholders.
const (
	NotAvailable    = "N/A"
	NoneKor         = "없음"
	NoneEng         = "None"
	UnknownKor      = "정보 없음"
	UnknownEng      = "Unknown"
	DefaultName     = "이름 없음"
	DefaultLanguage = "English"
)

// JoinSymptoms joins associated symptoms with ", " or returns the "None"
// placeholder for an empty list.
func JoinSymptoms(symptoms []string) string {
	kept := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return NoneEng
	}
	return strings.Join(kept, ", ")
}

// Narrative builds the single-paragraph history of present illness from the
// raw fields in fixed order: onset, chief complaint, severity, associated
// symptoms, concerns.
func Narrative(e pkg.EncounterData) string {
	return fmt.Sprintf("Onset: %s. Chief complaint: %s. Severity: %s. Associated symptoms: %s. Concerns: %s.",
		orDefault(e.SymptomOnset, NotAvailable),
		orDefault(e.ChiefComplaint, NotAvailable),
		orDefault(e.SymptomSeverity, NotAvailable),
		JoinSymptoms(e.AssociatedSymptoms),
		orDefault(e.Concerns, NotAvailable),
	)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
