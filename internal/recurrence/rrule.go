// Package recurrence wraps github.com/teambition/rrule-go for repeat-rule
// parsing and expansion.
//
// All instants going in and out of this package are synthetic: UTC values
// whose numeric fields are wall-clock fields (see package wallclock).
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"wallcal/internal/wallclock"
)

const rrulePrefix = "RRULE:"

var ErrInvalidRule = errors.New("invalid repeat rule")

// Parse parses rule text such as "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE".
// A leading "RRULE:" and trailing separators are tolerated.
func Parse(rule string) (*rrule.ROption, error) {
	text := clean(rule)
	if text == "" {
		return nil, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}
	opt, err := rrule.StrToROption(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, rule, err)
	}
	return opt, nil
}

// Validate reports whether rule can be expanded.
func Validate(rule string) error {
	opt, err := Parse(rule)
	if err != nil {
		return err
	}
	opt.Dtstart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := rrule.NewRRule(*opt); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRule, rule, err)
	}
	return nil
}

// Between expands rule anchored at anchor and returns every occurrence in
// [from, to], inclusive at both ends. Output is ordered; duplicates from a
// degenerate rule are not removed here.
func Between(rule string, anchor, from, to time.Time) ([]time.Time, error) {
	opt, err := Parse(rule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = anchor

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, rule, err)
	}
	return r.Between(from, to, true), nil
}

// WithUntil sets the UNTIL bound of rule, replacing an existing UNTIL token
// or appending one. The value is formatted from the synthetic fields of
// until, so a wall-clock cutoff stays a wall-clock cutoff. Other tokens are
// kept as written.
func WithUntil(rule string, until wallclock.Time) (string, error) {
	head, body := splitRuleLine(rule)
	prefix := ""
	if strings.HasPrefix(strings.ToUpper(body), rrulePrefix) {
		prefix, body = body[:len(rrulePrefix)], body[len(rrulePrefix):]
	}

	token := "UNTIL=" + until.UntilString()
	parts := make([]string, 0, 8)
	replaced := false
	for _, p := range strings.Split(body, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key, _, _ := strings.Cut(p, "=")
		if strings.EqualFold(key, "UNTIL") {
			if !replaced {
				parts = append(parts, token)
				replaced = true
			}
			continue
		}
		parts = append(parts, p)
	}
	if !replaced {
		parts = append(parts, token)
	}

	out := head + prefix + strings.Join(parts, ";")
	if err := Validate(out); err != nil {
		return "", err
	}
	return out, nil
}

// splitRuleLine separates an optional leading DTSTART line from the rule line.
func splitRuleLine(rule string) (head, body string) {
	rule = strings.TrimSpace(rule)
	if i := strings.LastIndex(rule, "\n"); i >= 0 {
		return rule[:i+1], strings.TrimSpace(rule[i+1:])
	}
	return "", rule
}

// clean returns the bare rule body. A DTSTART line is dropped because the
// anchor always comes from the definition.
func clean(rule string) string {
	_, body := splitRuleLine(rule)
	body = strings.Trim(body, "; ")
	if strings.HasPrefix(strings.ToUpper(body), rrulePrefix) {
		body = body[len(rrulePrefix):]
	}
	return body
}
