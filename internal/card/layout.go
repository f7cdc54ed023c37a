package card

import (
	"fmt"
	"strconv"
	"time"

	"intake-card/pkg"
)

// maxFieldRunes bounds every free-text field before the composer measures it
// against the page.
const maxFieldRunes = 900

// sheet is the resolved text content of every card section. It is built once
// per input shape and then drawn by a single layout routine.
type sheet struct {
	Emergency bool

	Name     string
	Age      string
	Gender   string
	Language string

	ComplaintPrimary   string
	ComplaintSecondary string // empty for raw input

	// Bilingual input fills both columns; raw input fills only Narrative.
	HPIPrimary     string
	HPITranslation string
	Narrative      string

	PainScore string

	Allergies  string
	Department string
}

func (s sheet) twoColumnHPI() bool { return s.Narrative == "" }

func buildSheet(profile pkg.PatientProfile, in Input, now time.Time) sheet {
	s := sheet{
		Name:     clip(orDefault(profile.Name, DefaultName)),
		Age:      ageText(profile.BirthDate, now),
		Gender:   clip(orDefault(profile.Gender, NotAvailable)),
		Language: clip(orDefault(profile.Language, DefaultLanguage)),
	}

	switch v := in.(type) {
	case Enriched:
		d := v.Data
		s.Emergency = d.IsEmergency
		s.ComplaintPrimary = clip(orDefault(d.CCKor, NoneKor))
		s.ComplaintSecondary = clip(orDefault(d.CCEng, NotAvailable))
		s.HPIPrimary = clip(orDefault(d.HPIKor, NoneKor))
		s.HPITranslation = clip(orDefault(d.HPIEng, NotAvailable))
		s.PainScore = scoreText(d.PainScore)
		s.Allergies = clip(orDefault(d.AllergiesKor, NoneKor)) + " / " + clip(orDefault(d.AllergiesEng, NoneEng))
		s.Department = clip(orDefault(d.SuggestedDeptKor, UnknownKor)) + " / " + clip(orDefault(d.SuggestedDeptEng, UnknownEng))
	case Raw:
		s.fillRaw(v.Data)
	default:
		s.fillRaw(pkg.EncounterData{})
	}
	return s
}

func (s *sheet) fillRaw(e pkg.EncounterData) {
	s.Emergency = IsEmergencySeverity(e.SymptomSeverity)
	s.ComplaintPrimary = fmt.Sprintf("%s (onset: %s)",
		clip(orDefault(e.ChiefComplaint, NotAvailable)), clip(orDefault(e.SymptomOnset, NotAvailable)))
	s.Narrative = clip(Narrative(e))
	if v, ok := ParseSeverity(e.SymptomSeverity); ok {
		s.PainScore = scoreText(pkg.NewScore(v))
	} else {
		s.PainScore = NotAvailable
	}
	s.Allergies = UnknownKor + " / " + UnknownEng
	s.Department = UnknownKor + " / " + UnknownEng
}

func ageText(birth *time.Time, now time.Time) string {
	if birth == nil || birth.IsZero() {
		return NotAvailable
	}
	age := Age(*birth, now)
	if age < 0 {
		return NotAvailable
	}
	return strconv.Itoa(age)
}

func scoreText(s pkg.Score) string {
	if !s.Valid {
		return NotAvailable
	}
	return s.String() + "/10"
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxFieldRunes {
		return s
	}
	return string(r[:maxFieldRunes]) + ellipsis
}
