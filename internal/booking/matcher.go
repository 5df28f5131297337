package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const maxMatches = 5

// specialtySynonyms maps common lay terms to canonical specialty names.
// Unrecognized terms pass through unchanged for substring matching.
var specialtySynonyms = map[string]string{
	"heart":   "cardiology",
	"cardiac": "cardiology",
	"skin":    "dermatology",
	"rash":    "dermatology",
	"acne":    "dermatology",
	"bone":    "orthopaedics",
	"joint":   "orthopaedics",
	"knee":    "orthopaedics",
	"back":    "orthopaedics",
	"general": "general practice",
	"gp":      "general practice",
	"cough":   "general practice",
	"fever":   "general practice",
	"flu":     "general practice",
	"cold":    "general practice",
}

// Matcher resolves extracted preferences against the availability store.
// It is a pure query: the only store operation it performs is Query, and
// identical inputs against an unchanged store yield identical results.
type Matcher struct {
	store SlotStore
}

// NewMatcher builds a matcher over the supplied availability store.
func NewMatcher(store SlotStore) *Matcher {
	if store == nil {
		panic("booking: slot store cannot be nil")
	}
	return &Matcher{store: store}
}

// FindMatches returns up to five available slots ordered by time ascending.
// preferredDate is accepted as a free-text signal but does not constrain
// matching in this version; only specialty and a morning/afternoon hint on
// preferredTime narrow the results.
func (m *Matcher) FindMatches(ctx context.Context, specialty, preferredDate, preferredTime string) ([]Slot, error) {
	_ = preferredDate // free text only, deliberately non-binding

	filter := ResolveSpecialty(specialty)
	slots, err := m.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("booking: availability query: %w", err)
	}

	available := slots[:0:0]
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].StartsAt.Before(available[j].StartsAt)
	})
	if len(available) > maxMatches {
		available = available[:maxMatches]
	}

	return filterTimeOfDay(available, preferredTime), nil
}

// ResolveSpecialty lowercases the term and resolves lay synonyms to
// canonical specialty names. Empty input stays empty (no filter).
func ResolveSpecialty(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return ""
	}
	if canonical, ok := specialtySynonyms[term]; ok {
		return canonical
	}
	return term
}

// filterTimeOfDay applies the morning/afternoon secondary filter. When the
// filter would eliminate every candidate, the unfiltered set is kept so a
// looser match is never discarded for an overly strict time hint.
func filterTimeOfDay(slots []Slot, preferredTime string) []Slot {
	if preferredTime == "" || len(slots) == 0 {
		return slots
	}

	timeLower := strings.ToLower(preferredTime)
	var keep func(Slot) bool
	switch {
	case strings.Contains(timeLower, "morning") || strings.Contains(timeLower, "am"):
		keep = func(s Slot) bool { return s.StartsAt.Hour() < 12 }
	case strings.Contains(timeLower, "afternoon") || strings.Contains(timeLower, "pm"):
		keep = func(s Slot) bool { return s.StartsAt.Hour() >= 12 }
	default:
		return slots
	}

	filtered := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if keep(s) {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return slots
	}
	return filtered
}
