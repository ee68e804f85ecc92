package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValidID checks if the value is a well-formed opaque entity id (UUID).
func IsValidID(id string) bool {
	return uuidRegex.MatchString(id)
}

// ValidateID returns a validation error naming the field if the id is malformed.
func ValidateID(domain, field, id string) error {
	if strings.TrimSpace(id) == "" {
		return NewDomainError(domain, "Validate", ErrEmptyValue, field+" is required")
	}
	if !IsValidID(id) {
		return NewDomainError(domain, "Validate", ErrInvalidID, "invalid "+field)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DefaultTotalWeeks is the presentation denominator used when a program
// does not declare its own duration.
const DefaultTotalWeeks = 12

// Progress represents "Week N of M" for an active mentorship.
// It is derived from reports and never stored.
type Progress struct {
	LatestWeek int `json:"latest_week"`
	TotalWeeks int `json:"total_weeks"`
}

// NewProgress creates a Progress, falling back to DefaultTotalWeeks
// for a non-positive denominator.
func NewProgress(latestWeek, totalWeeks int) Progress {
	if totalWeeks <= 0 {
		totalWeeks = DefaultTotalWeeks
	}
	if latestWeek < 0 {
		latestWeek = 0
	}
	return Progress{LatestWeek: latestWeek, TotalWeeks: totalWeeks}
}

// Percent returns the completion percentage capped at 100.
func (p Progress) Percent() int {
	if p.TotalWeeks <= 0 {
		return 0
	}
	pct := p.LatestWeek * 100 / p.TotalWeeks
	if pct > 100 {
		return 100
	}
	return pct
}

// Label renders the indicator, e.g. "Week 3 (25%)".
func (p Progress) Label() string {
	return fmt.Sprintf("Week %d (%d%%)", p.LatestWeek, p.Percent())
}
