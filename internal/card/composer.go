package card

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"intake-card/pkg"
)

const (
	pageMargin   = 15.0
	footerHeight = 16.0
	footerGap    = 3.0
	columnGap    = 6.0
	ellipsis     = "..."

	// Line budgets for the free-text blocks outside the history section.
	// History takes whatever height is left above the footer.
	complaintLines  = 3
	translatedLines = 2
	alertLines      = 2
	disclaimerLines = 2
	footerLines     = 4

	titleText      = "MEDICAL CARD | 진료 카드"
	emergencyText  = "EMERGENCY / 응급"
	emergencyNote  = "Red flags reported: prioritize triage / 위험 신호 있음: 우선 진료 필요"
	normalText     = "NORMAL / 일반"
	normalNote     = "No red flags reported / 위험 신호 없음"
	physicianCheck = "(must be confirmed by a physician / 의사 확인 필요)"
	aiDisclaimer   = "AI-derived information, not a diagnosis. / AI가 추출한 정보이며 진단이 아닙니다."
	footerText     = "This medical card was generated from a patient self-report interview and is for reference only. " +
		"It is not a medical diagnosis or a treatment recommendation. / " +
		"본 진료 카드는 환자 자가 문진을 바탕으로 생성된 참고 자료이며 의학적 진단이나 치료 권고가 아닙니다."
)

// Fonts holds TrueType font data with Hangul coverage. Without fonts the
// composer falls back to the core Helvetica font and non-Latin text degrades.
type Fonts struct {
	Regular []byte
	Bold    []byte
}

// LoadFonts reads the regular and (optional) bold TTF files. Both paths empty
// returns nil, nil.
func LoadFonts(regularPath, boldPath string) (*Fonts, error) {
	if regularPath == "" {
		return nil, nil
	}
	regular, err := os.ReadFile(regularPath)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f := &Fonts{Regular: regular, Bold: regular}
	if boldPath != "" {
		bold, err := os.ReadFile(boldPath)
		if err != nil {
			return nil, fmt.Errorf("read bold font: %w", err)
		}
		f.Bold = bold
	}
	return f, nil
}

// Composer renders medical cards as single-page A4 PDFs. It is safe for
// concurrent use; font data is never modified.
type Composer struct {
	fonts *Fonts
}

// NewComposer constructs a Composer. fonts may be nil.
func NewComposer(fonts *Fonts) *Composer {
	return &Composer{fonts: fonts}
}

// Compose lays out the card for profile and in, using now for the age and the
// document timestamp, and returns the finished PDF. Missing data never fails
// composition; only rendering errors are returned.
func (c *Composer) Compose(profile pkg.PatientProfile, in Input, now time.Time) ([]byte, error) {
	pdf, _ := c.draw(buildSheet(profile, in, now), now)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render card: %w", err)
	}
	return buf.Bytes(), nil
}

// draw renders s onto a single page and reports where the body ended.
// Every section is always drawn; free text is shortened to fit above the
// footer.
func (c *Composer) draw(s sheet, now time.Time) (*fpdf.Fpdf, float64) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(now)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Medical Card", true)
	pdf.SetCreator("intake-card", true)

	p := &pen{pdf: pdf, family: "Helvetica", tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if c.fonts != nil && len(c.fonts.Regular) > 0 {
		pdf.AddUTF8FontFromBytes("card", "", c.fonts.Regular)
		pdf.AddUTF8FontFromBytes("card", "B", c.fonts.Bold)
		p.family = "card"
		p.tr = func(s string) string { return s }
	}
	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()
	p.width = pageW - 2*pageMargin
	limit := footerTop(pageH) - footerGap

	p.header(s)
	p.patient(s)
	p.complaint(s)
	alerts := p.alertBlock(s)
	p.history(s, limit-painHeight-alerts.height())
	p.pain(s)
	p.alerts(alerts)
	end := pdf.GetY()
	p.footer(pageH)
	return pdf, end
}

func footerTop(pageH float64) float64 { return pageH - pageMargin - footerHeight }

const (
	headingHeight = 3 + 7 + 1
	painHeight    = headingHeight + 6
	alertLineH    = 5.0
)

type pen struct {
	pdf    *fpdf.Fpdf
	family string
	tr     func(string) string
	width  float64
}

func (p *pen) font(style string, size float64) { p.pdf.SetFont(p.family, style, size) }

func (p *pen) line(w, h float64, text string, ln int, align string, fill bool) {
	p.pdf.CellFormat(w, h, p.tr(text), "", ln, align, fill, 0, "")
}

// block draws pre-wrapped lines at x, one cell per line.
func (p *pen) block(x, w, h float64, lines []string, align string) {
	for _, l := range lines {
		p.pdf.SetX(x)
		p.pdf.CellFormat(w, h, p.tr(l), "", 2, align, false, 0, "")
	}
}

// wrap breaks text into lines no wider than a cell of width w in the current
// font, preferring breaks at spaces.
func (p *pen) wrap(text string, w float64) []string {
	avail := w - 2*p.pdf.GetCellMargin()
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		first := len(lines)
		start, space := 0, -1
		width := 0.0
		for i := 0; i < len(runes); i++ {
			if runes[i] == ' ' {
				space = i
			}
			width += p.pdf.GetStringWidth(p.tr(string(runes[i])))
			if width <= avail || i == start {
				continue
			}
			end := i
			if space > start {
				end = space
			}
			lines = append(lines, strings.TrimRight(string(runes[start:end]), " "))
			start = end
			for start < len(runes) && runes[start] == ' ' {
				start++
			}
			i = start - 1
			space = -1
			width = 0
		}
		if start < len(runes) || len(lines) == first {
			lines = append(lines, string(runes[start:]))
		}
	}
	return lines
}

// fit wraps prefix+value+suffix into at most maxLines lines, cutting value
// short with an ellipsis when it does not fit.
func (p *pen) fit(prefix, value, suffix string, w float64, maxLines int) []string {
	if maxLines < 1 {
		maxLines = 1
	}
	lines := p.wrap(prefix+value+suffix, w)
	if len(lines) <= maxLines {
		return lines
	}
	r := []rune(value)
	best := p.wrap(prefix+ellipsis+suffix, w)
	lo, hi := 0, len(r)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		cand := p.wrap(prefix+string(r[:mid])+ellipsis+suffix, w)
		if len(cand) <= maxLines {
			lo, best = mid, cand
		} else {
			hi = mid - 1
		}
	}
	if len(best) > maxLines {
		best = best[:maxLines]
	}
	return best
}

func (p *pen) heading(title string) {
	p.pdf.Ln(3)
	p.pdf.SetFillColor(235, 238, 243)
	p.pdf.SetTextColor(30, 41, 59)
	p.font("B", 12)
	p.line(p.width, 7, " "+title, 1, "L", true)
	p.pdf.Ln(1)
	p.pdf.SetTextColor(0, 0, 0)
}

func (p *pen) header(s sheet) {
	p.font("B", 20)
	p.line(p.width, 10, titleText, 1, "C", false)
	p.pdf.Ln(2)

	p.pdf.SetTextColor(255, 255, 255)
	p.font("B", 13)
	if s.Emergency {
		p.pdf.SetFillColor(200, 30, 45)
		p.line(p.width, 9, emergencyText, 1, "C", true)
		p.pdf.SetTextColor(200, 30, 45)
		p.font("B", 9)
		p.line(p.width, 6, emergencyNote, 1, "C", false)
	} else {
		p.pdf.SetFillColor(34, 139, 84)
		p.line(p.width, 9, normalText, 1, "C", true)
		p.pdf.SetTextColor(90, 90, 90)
		p.font("", 9)
		p.line(p.width, 6, normalNote, 1, "C", false)
	}
	p.pdf.SetTextColor(0, 0, 0)
}

func (p *pen) patient(s sheet) {
	p.heading("Patient / 환자 정보")
	half := p.width / 2
	p.font("", 11)
	p.line(half, 6, p.fit("Name / 이름: ", s.Name, "", half, 1)[0], 0, "L", false)
	p.line(half, 6, "Age / 나이: "+s.Age, 1, "L", false)
	p.line(half, 6, p.fit("Gender / 성별: ", s.Gender, "", half, 1)[0], 0, "L", false)
	p.line(half, 6, p.fit("Language / 언어: [", s.Language, "]", half, 1)[0], 1, "L", false)
}

func (p *pen) complaint(s sheet) {
	p.heading("Chief Complaint / 주호소")
	p.font("B", 12)
	p.block(pageMargin, p.width, 6, p.fit("", s.ComplaintPrimary, "", p.width, complaintLines), "L")
	if s.ComplaintSecondary != "" {
		p.pdf.SetTextColor(90, 90, 90)
		p.font("", 10)
		p.block(pageMargin, p.width, 5, p.fit("", s.ComplaintSecondary, "", p.width, translatedLines), "L")
		p.pdf.SetTextColor(0, 0, 0)
	}
}

// history fills the space between the current position and bottom.
func (p *pen) history(s sheet, bottom float64) {
	p.heading("History of Present Illness / 현병력")
	p.font("", 10)
	if !s.twoColumnHPI() {
		budget := int((bottom - p.pdf.GetY()) / 5)
		p.block(pageMargin, p.width, 5, p.fit("", s.Narrative, "", p.width, budget), "L")
		return
	}

	colW := (p.width - columnGap) / 2
	left := pageMargin
	right := pageMargin + colW + columnGap
	top := p.pdf.GetY()
	budget := int((bottom - top - 5) / 5)

	p.font("B", 9)
	p.pdf.SetXY(left, top)
	p.line(colW, 5, "한국어 (의료진용)", 2, "L", false)
	p.font("", 10)
	p.block(left, colW, 5, p.fit("", s.HPIPrimary, "", colW, budget), "L")
	leftBottom := p.pdf.GetY()

	p.font("B", 9)
	p.pdf.SetXY(right, top)
	p.line(colW, 5, "English (patient copy)", 2, "L", false)
	p.font("", 10)
	p.block(right, colW, 5, p.fit("", s.HPITranslation, "", colW, budget), "L")
	rightBottom := p.pdf.GetY()

	p.pdf.SetXY(left, max(leftBottom, rightBottom))
}

func (p *pen) pain(s sheet) {
	p.heading("Pain Score / 통증 점수")
	p.font("B", 11)
	p.line(p.width, 6, s.PainScore, 1, "L", false)
}

// alertLayout is the pre-wrapped alerts section, measured before history so
// history knows how much room is left.
type alertLayout struct {
	allergies  []string
	department []string
	disclaimer []string
}

func (a alertLayout) height() float64 {
	return headingHeight + alertLineH*float64(len(a.allergies)+len(a.department)+len(a.disclaimer))
}

func (p *pen) alertBlock(s sheet) alertLayout {
	var a alertLayout
	p.font("B", 10)
	a.allergies = p.fit("Allergies / 알레르기: ", s.Allergies, " "+physicianCheck, p.width, alertLines)
	a.department = p.fit("Suggested department / 권장 진료과: ", s.Department, " "+physicianCheck, p.width, alertLines)
	p.font("", 9)
	a.disclaimer = p.fit("", aiDisclaimer, "", p.width, disclaimerLines)
	return a
}

func (p *pen) alerts(a alertLayout) {
	p.heading("Medical History & Alerts / 병력 및 주의사항")
	p.pdf.SetTextColor(200, 30, 45)
	p.font("B", 10)
	p.block(pageMargin, p.width, alertLineH, a.allergies, "L")
	p.block(pageMargin, p.width, alertLineH, a.department, "L")
	p.font("", 9)
	p.block(pageMargin, p.width, alertLineH, a.disclaimer, "L")
	p.pdf.SetTextColor(0, 0, 0)
}

// footer is pinned above the bottom margin regardless of body length.
func (p *pen) footer(pageH float64) {
	y := footerTop(pageH)
	p.pdf.SetDrawColor(180, 180, 180)
	p.pdf.Line(pageMargin, y-2, pageMargin+p.width, y-2)
	p.pdf.SetXY(pageMargin, y)
	p.pdf.SetTextColor(110, 110, 110)
	p.font("", 8)
	p.block(pageMargin, p.width, 4, p.fit("", footerText, "", p.width, footerLines), "C")
	p.pdf.SetTextColor(0, 0, 0)
}
