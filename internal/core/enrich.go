package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"intake-card/internal/card"
	"intake-card/internal/llm"
	"intake-card/internal/util"
	"intake-card/pkg"
)

// Fallback department when the model cannot suggest one.
const (
	FallbackDeptKor = "내과"
	FallbackDeptEng = "Internal Medicine"
)

// Enricher turns a raw encounter into bilingual card data using the model in
// JSON mode. It never fails: any gateway or decoding problem falls back to a
// local synthesis from the raw fields.
type Enricher struct {
	LLM     llm.Client
	Timeout time.Duration
}

// NewEnricher constructs an Enricher.
func NewEnricher(client llm.Client, timeout time.Duration) *Enricher {
	return &Enricher{LLM: client, Timeout: timeout}
}

// Enrich returns structured card data and whether it came from the model.
func (e *Enricher) Enrich(ctx context.Context, data pkg.EncounterData) (pkg.StructuredCardData, bool) {
	logger := util.LoggerFromContext(ctx)
	prompt, err := json.Marshal(data)
	if err != nil {
		logger.Warn("encode encounter for enrichment", "err", err)
		return FallbackCardData(data), false
	}

	callCtx, cancel := withTimeout(ctx, e.Timeout)
	defer cancel()
	raw, err := e.LLM.CompleteJSON(callCtx, EnrichmentInstruction, "Intake record:\n"+string(prompt))
	if err != nil {
		logger.Warn("enrichment call failed, using local synthesis", "err", err)
		return FallbackCardData(data), false
	}
	out, err := DecodeCardData(raw)
	if err != nil {
		logger.Warn("enrichment output unusable, using local synthesis", "err", err)
		return FallbackCardData(data), false
	}
	return out, true
}

type cardDataArgs struct {
	CCKor            *string   `json:"cc_kor"`
	CCEng            *string   `json:"cc_eng"`
	HPIKor           *string   `json:"hpi_kor"`
	HPIEng           *string   `json:"hpi_eng"`
	PainScore        pkg.Score `json:"pain_score"`
	AllergiesKor     string    `json:"allergies_kor"`
	AllergiesEng     string    `json:"allergies_eng"`
	SuggestedDeptKor string    `json:"suggested_dept_kor"`
	SuggestedDeptEng string    `json:"suggested_dept_eng"`
	IsEmergency      *bool     `json:"is_emergency"`
}

// DecodeCardData parses the enrichment JSON object. The complaint, history and
// is_emergency keys are mandatory; unknown allergies default to "없음"/"None"
// and a missing department to the unknown placeholder.
func DecodeCardData(raw string) (pkg.StructuredCardData, error) {
	var args cardDataArgs
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &args); err != nil {
		return pkg.StructuredCardData{}, fmt.Errorf("%w: card data: %w", ErrMalformedModelOutput, err)
	}
	var missing []string
	for key, v := range map[string]*string{
		"cc_kor": args.CCKor, "cc_eng": args.CCEng, "hpi_kor": args.HPIKor, "hpi_eng": args.HPIEng,
	} {
		if v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, key)
		}
	}
	if args.IsEmergency == nil {
		missing = append(missing, "is_emergency")
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		return pkg.StructuredCardData{}, fmt.Errorf("%w: card data missing %s", ErrMalformedModelOutput, strings.Join(missing, ", "))
	}
	return pkg.StructuredCardData{
		CCKor:            *args.CCKor,
		CCEng:            *args.CCEng,
		HPIKor:           *args.HPIKor,
		HPIEng:           *args.HPIEng,
		PainScore:        args.PainScore,
		AllergiesKor:     valueOr(args.AllergiesKor, card.NoneKor),
		AllergiesEng:     valueOr(args.AllergiesEng, card.NoneEng),
		SuggestedDeptKor: valueOr(args.SuggestedDeptKor, card.UnknownKor),
		SuggestedDeptEng: valueOr(args.SuggestedDeptEng, card.UnknownEng),
		IsEmergency:      *args.IsEmergency,
	}, nil
}

// FallbackCardData synthesizes card data from the raw fields without any
// translation. is_emergency comes only from the numeric severity threshold.
func FallbackCardData(data pkg.EncounterData) pkg.StructuredCardData {
	complaint := valueOr(data.ChiefComplaint, card.NotAvailable)
	narrative := card.Narrative(data)
	out := pkg.StructuredCardData{
		CCKor:            complaint,
		CCEng:            complaint,
		HPIKor:           narrative,
		HPIEng:           narrative,
		AllergiesKor:     card.UnknownKor,
		AllergiesEng:     card.UnknownEng,
		SuggestedDeptKor: FallbackDeptKor,
		SuggestedDeptEng: FallbackDeptEng,
		IsEmergency:      card.IsEmergencySeverity(data.SymptomSeverity),
	}
	if v, ok := card.ParseSeverity(data.SymptomSeverity); ok {
		out.PainScore = pkg.NewScore(v)
	}
	return out
}

func valueOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
