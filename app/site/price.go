package site

import (
	"regexp"
	"strconv"
	"strings"
)

var priceRun = regexp.MustCompile(`\d[\d.,]*`)

// ParsePrice returns the first number in text. Thousands separators are
// dropped, "," and "." alike; a text without digits has no price.
func ParsePrice(text string) (float64, bool) {
	run := priceRun.FindString(text)
	if run == "" {
		return 0, false
	}
	run = strings.TrimRight(run, ".,")

	value, err := strconv.ParseFloat(normalizeNumber(run), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func normalizeNumber(run string) string {
	lastComma := strings.LastIndex(run, ",")
	lastDot := strings.LastIndex(run, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Whichever separator comes last is the decimal point.
		if lastComma > lastDot {
			run = strings.ReplaceAll(run, ".", "")
			return strings.Replace(run, ",", ".", 1)
		}
		return strings.ReplaceAll(run, ",", "")
	case lastComma >= 0:
		return singleSeparator(run, ",", lastComma)
	case lastDot >= 0:
		return singleSeparator(run, ".", lastDot)
	}
	return run
}

// singleSeparator handles a number using only sep. Repeated separators, or
// one followed by exactly three digits, group thousands; otherwise sep is
// the decimal point.
func singleSeparator(run, sep string, last int) string {
	if strings.Count(run, sep) > 1 || len(run)-last-1 == 3 {
		return strings.ReplaceAll(run, sep, "")
	}
	return strings.Replace(run, sep, ".", 1)
}
