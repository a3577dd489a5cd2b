// Package classify turns a marker value and a reference-range expression
// into a severity verdict. It is pure and total: malformed input degrades
// to SeverityUnknown, it never returns an error.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"healthdoc/internal/model"
)

// DefaultTolerance is the band, as a fraction of the range span (two-sided
// ranges) or bound magnitude (one-sided bounds), within which an out-of-range
// value is reported as borderline rather than abnormal.
const DefaultTolerance = 0.10

var (
	// "<6 - 6.0" style artifacts: a one-sided bound the OCR smeared into a
	// fake interval by duplicating (and often truncating) the operand.
	reSmearedBound = regexp.MustCompile(`^([<>]=?)\s*(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)$`)

	reInterval = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)`)
	reLess     = regexp.MustCompile(`<=\s*(\d+(?:\.\d+)?)|<\s*(\d+(?:\.\d+)?)`)
	reGreater  = regexp.MustCompile(`>=\s*(\d+(?:\.\d+)?)|>\s*(\d+(?:\.\d+)?)`)
	reNumber   = regexp.MustCompile(`[-+]?\d*\.\d+|[-+]?\d+`)
)

// Classify evaluates value against referenceRange with DefaultTolerance.
func Classify(value, referenceRange string) model.Severity {
	return ClassifyWith(value, referenceRange, DefaultTolerance)
}

// ClassifyWith evaluates value against referenceRange using the given
// tolerance band. Empty or unparseable input yields SeverityUnknown.
func ClassifyWith(value, referenceRange string, tolerance float64) model.Severity {
	if strings.TrimSpace(referenceRange) == "" {
		return model.SeverityUnknown
	}
	v, ok := parseValue(value)
	if !ok {
		return model.SeverityUnknown
	}

	rangeStr := NormalizeRange(strings.ReplaceAll(referenceRange, ",", "."))

	if m := reInterval.FindStringSubmatch(rangeStr); m != nil {
		low, errL := strconv.ParseFloat(m[1], 64)
		high, errH := strconv.ParseFloat(m[2], 64)
		if errL != nil || errH != nil || low > high {
			return model.SeverityUnknown
		}
		if v >= low && v <= high {
			return model.SeverityNormal
		}
		margin := 0.0
		if span := high - low; span > 0 {
			margin = span * tolerance
		}
		if v < low {
			if low-v <= margin {
				return model.SeverityBorderlineLow
			}
			return model.SeverityAbnormalLow
		}
		if v-high <= margin {
			return model.SeverityBorderlineHigh
		}
		return model.SeverityAbnormalHigh
	}

	if m := reLess.FindStringSubmatch(rangeStr); m != nil {
		high, err := strconv.ParseFloat(firstGroup(m), 64)
		if err != nil {
			return model.SeverityUnknown
		}
		if v < high {
			return model.SeverityNormal
		}
		if v-high <= abs(high)*tolerance {
			return model.SeverityBorderlineHigh
		}
		return model.SeverityAbnormalHigh
	}

	if m := reGreater.FindStringSubmatch(rangeStr); m != nil {
		low, err := strconv.ParseFloat(firstGroup(m), 64)
		if err != nil {
			return model.SeverityUnknown
		}
		if v > low {
			return model.SeverityNormal
		}
		if low-v <= abs(low)*tolerance {
			return model.SeverityBorderlineLow
		}
		return model.SeverityAbnormalLow
	}

	return model.SeverityUnknown
}

// NormalizeRange collapses OCR-smeared one-sided bounds ("<6 - 6.0" -> "<6.0",
// ">40 - 40" -> ">40") into a single-bound expression using the larger-magnitude
// operand. Genuine two-sided intervals are returned verbatim. Idempotent.
func NormalizeRange(raw string) string {
	s := strings.TrimSpace(raw)
	m := reSmearedBound.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	a, errA := strconv.ParseFloat(m[2], 64)
	b, errB := strconv.ParseFloat(m[3], 64)
	if errA != nil || errB != nil {
		return s
	}
	if a != b && !digitPrefix(m[2], m[3]) {
		// A real interval that happens to carry a leading operator; the
		// operands are unrelated, so keep the expression untouched.
		return s
	}
	bound := m[2]
	if abs(b) >= abs(a) {
		bound = m[3]
	}
	return m[1] + bound
}

// digitPrefix reports whether one operand's digit string is a truncated
// prefix of the other's, ignoring decimal points ("6" vs "6.0").
func digitPrefix(a, b string) bool {
	da := strings.ReplaceAll(a, ".", "")
	db := strings.ReplaceAll(b, ".", "")
	return strings.HasPrefix(da, db) || strings.HasPrefix(db, da)
}

func parseValue(value string) (float64, bool) {
	s := strings.ReplaceAll(value, ",", ".")
	num := reNumber.FindString(s)
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstGroup(m []string) string {
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
