// Package visitor converts open-day registration exports into SQL rows
// for the gate's visitors table.
package visitor

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// CleanPhone keeps the digits of s.  Longer numbers keep their last ten
// digits (country codes are dropped); shorter ones are rejected.
func CleanPhone(s string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if len(digits) < 10 {
		return "", false
	}
	return digits, true
}

var (
	nobody      = map[string]bool{"no one": true, "none": true, "0": true, "alone": true, "-": true, ".": true}
	parenthesis = regexp.MustCompile(`\([^)]*\)`)
	listSep     = regexp.MustCompile(`[,;&\n]+|\s+and\s+|\s+-\s+`)
	roleWords   = map[string]bool{
		"father": true, "mother": true, "sister": true, "brother": true,
		"friend": true, "cousin": true, "elder sister": true, "dad": true,
		"mom": true, "husband": true, "wife": true, "classmate": true,
		"grandfather": true, "grandmother": true,
	}
)

// AccompanyingCount counts the people named in a free-text companion
// field such as "Ravi (brother), Anita and mother".  Bare relationship
// words are not counted as people.
func AccompanyingCount(s string) int {
	text := strings.ToLower(strings.TrimSpace(s))
	if text == "" || nobody[text] {
		return 0
	}
	text = parenthesis.ReplaceAllString(text, "")
	n := 0
	for _, part := range listSep.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" || roleWords[part] {
			continue
		}
		n++
	}
	return n
}

// Interests turns a comma separated list into a JSON array string.
func Interests(s string) string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(out)
	return strings.TrimSuffix(buf.String(), "\n")
}

var (
	visitDate = regexp.MustCompile(`(\d+)(?:st|nd|rd|th)\s+(\w+)\s+(\d{4})`)
	months    = map[string]string{
		"january": "01", "february": "02", "march": "03", "april": "04",
		"may": "05", "june": "06", "july": "07", "august": "08",
		"september": "09", "october": "10", "november": "11", "december": "12",
	}
)

// VisitDate parses dates written like "Sunday 30th November 2025" and
// returns them as 2025-11-30.
func VisitDate(s string) (string, bool) {
	m := visitDate.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	month, ok := months[strings.ToLower(m[2])]
	if !ok {
		return "", false
	}
	day := m[1]
	if len(day) == 1 {
		day = "0" + day
	}
	return m[3] + "-" + month + "-" + day, true
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email trims and lower-cases s and reports whether it looks like an
// address.
func Email(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || !emailPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// Name trims surrounding whitespace.  Inner spacing is kept as typed.
func Name(s string) string {
	return strings.TrimSpace(s)
}
