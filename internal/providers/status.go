package providers

import (
	"fmt"
	"strings"
)

// Status is the canonical publication status. Site-specific wording is
// mapped onto it once, through a StatusVocabulary.
type Status int

const (
	StatusUnknown Status = iota
	StatusOngoing
	StatusCompleted
	StatusHiatus
	StatusCancelled
	StatusLicensed
)

var statusNames = map[Status]string{
	StatusUnknown:   "unknown",
	StatusOngoing:   "ongoing",
	StatusCompleted: "completed",
	StatusHiatus:    "hiatus",
	StatusCancelled: "cancelled",
	StatusLicensed:  "licensed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus reads a canonical status name.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", name)
}

// StatusVocabulary maps lower-cased site wording to canonical statuses.
type StatusVocabulary map[string]Status

var DefaultVocabulary = StatusVocabulary{
	"ongoing":      StatusOngoing,
	"publishing":   StatusOngoing,
	"releasing":    StatusOngoing,
	"serializing":  StatusOngoing,
	"completed":    StatusCompleted,
	"complete":     StatusCompleted,
	"finished":     StatusCompleted,
	"ended":        StatusCompleted,
	"hiatus":       StatusHiatus,
	"on hiatus":    StatusHiatus,
	"paused":       StatusHiatus,
	"cancelled":    StatusCancelled,
	"canceled":     StatusCancelled,
	"dropped":      StatusCancelled,
	"discontinued": StatusCancelled,
	"licensed":     StatusLicensed,
}

// Map returns the canonical status for raw, StatusUnknown when unmapped.
func (v StatusVocabulary) Map(raw string) Status {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if s, ok := v[key]; ok {
		return s
	}
	return StatusUnknown
}

// Extend returns a copy of v with extra wording, given as raw -> canonical
// name pairs (as found in a source's configuration).
func (v StatusVocabulary) Extend(extra map[string]string) (StatusVocabulary, error) {
	out := make(StatusVocabulary, len(v)+len(extra))
	for k, s := range v {
		out[k] = s
	}

	for raw, name := range extra {
		s, err := ParseStatus(name)
		if err != nil {
			return nil, fmt.Errorf("status %q: %w", raw, err)
		}
		out[strings.ToLower(strings.Join(strings.Fields(raw), " "))] = s
	}

	return out, nil
}
