package booking

import (
	"fmt"
	"strings"
)

// Keywords that count as a confirmation. Covers English plus common Malay
// and romanized Mandarin affirmatives heard over the voice channel.
var confirmKeywords = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "ya": {}, "ok": {}, "okay": {},
	"sure": {}, "correct": {}, "confirm": {}, "confirmed": {}, "right": {},
	"go ahead": {}, "proceed": {}, "book it": {}, "book": {},
	"that's right": {}, "sounds good": {}, "good": {},
	// Malay
	"boleh": {}, "bagus": {}, "betul": {}, "ya betul": {},
	// Mandarin romanized
	"dui": {}, "hao": {}, "ke yi": {},
	// Short affirmatives
	"y": {}, "k": {},
}

// Keywords that count as a cancellation.
var cancelKeywords = map[string]struct{}{
	"no": {}, "nope": {}, "nah": {}, "cancel": {}, "stop": {}, "wrong": {},
	"not right": {}, "change": {}, "different": {}, "another": {},
	"try again": {}, "start over": {},
	// Malay
	"tidak": {}, "tak": {}, "salah": {}, "batal": {},
	// Mandarin romanized
	"bu": {}, "bu dui": {}, "bu yao": {},
	"n": {},
}

// Confirmer builds confirmation prompts and classifies yes/no replies
// with a deterministic keyword heuristic. Ambiguous input is re-prompted,
// never escalated to the language classifier.
type Confirmer struct{}

// PrepareConfirmation builds a short spoken prompt. With matches it
// proposes the earliest slot and asks for yes/no; without matches it echoes
// the understood preferences and asks the patient to retry.
func (Confirmer) PrepareConfirmation(slots SlotRequest, matches []Slot) string {
	if len(matches) == 0 {
		var parts []string
		if slots.Specialty != "" {
			parts = append(parts, slots.Specialty)
		}
		if slots.DoctorName != "" {
			parts = append(parts, "with "+slots.DoctorName)
		}
		if slots.PreferredDate != "" {
			parts = append(parts, "on "+slots.PreferredDate)
		}
		if slots.PreferredTime != "" {
			parts = append(parts, "in the "+slots.PreferredTime)
		}

		if len(parts) > 0 {
			return fmt.Sprintf(
				"I'm sorry, I couldn't find an available slot for %s. Could you try a different date or specialty?",
				strings.Join(parts, " "),
			)
		}
		return "I couldn't find any matching slots. Could you tell me which specialty or doctor you'd like to see?"
	}

	slot := matches[0]
	return fmt.Sprintf(
		"I found a slot with %s (%s) on %s at %s. Shall I confirm this booking? Please say yes or no.",
		slot.DoctorName,
		slot.Specialty,
		slot.StartsAt.Format("Monday, 02 January"),
		slot.StartsAt.Format("03:04 PM"),
	)
}

// IsConfirmation reports whether the text expresses agreement.
func (Confirmer) IsConfirmation(text string) bool {
	return matchesKeywordSet(text, confirmKeywords)
}

// IsCancellation reports whether the text expresses rejection.
func (Confirmer) IsCancellation(text string) bool {
	return matchesKeywordSet(text, cancelKeywords)
}

// matchesKeywordSet checks case-folded, punctuation-trimmed text for an
// exact match, or a keyword prefix followed by a word boundary (space or
// comma) so unrelated words sharing a prefix do not trigger.
func matchesKeywordSet(text string, keywords map[string]struct{}) bool {
	text = strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".")
	if _, ok := keywords[text]; ok {
		return true
	}
	for kw := range keywords {
		if strings.HasPrefix(text, kw+" ") || strings.HasPrefix(text, kw+",") {
			return true
		}
	}
	return false
}
