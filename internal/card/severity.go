package card

import (
	"regexp"
	"strconv"
)

// EmergencyThreshold is the severity above which an encounter is treated as
// an emergency when no explicit flag is available.
const EmergencyThreshold = 7

var severityNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseSeverity extracts the first number from a free-text severity such as
// "8", "8/10" or "about 6 out of 10".
func ParseSeverity(s string) (float64, bool) {
	m := severityNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsEmergencySeverity reports whether a free-text severity exceeds the
// emergency threshold. Unparseable input is never an emergency.
func IsEmergencySeverity(s string) bool {
	v, ok := ParseSeverity(s)
	return ok && v > EmergencyThreshold
}
