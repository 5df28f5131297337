// Package booking implements the voice-appointment pipeline: normalization
// of dialect-influenced transcripts, intent classification, availability
// matching, and the confirm/cancel state machine. Language-model output is
// only ever parsed here; it never mutates persistent state. The single
// write path to the availability store is the engine's confirm transition.
package booking

import (
	"errors"
	"strings"
	"time"
)

// State is the lifecycle position of a booking conversation.
type State string

const (
	StateCollecting State = "collecting"
	StateConfirming State = "confirming"
	StateConfirmed  State = "confirmed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the conversation accepts further transitions.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled
}

// Intent is the closed classification enum for a normalized utterance.
type Intent string

const (
	IntentBookAppointment   Intent = "book_appointment"
	IntentReschedule        Intent = "reschedule"
	IntentCancelAppointment Intent = "cancel_appointment"
	IntentCheckAvailability Intent = "check_availability"
	IntentUnclear           Intent = "unclear"
)

// ParseIntent collapses unknown intent strings to IntentUnclear.
func ParseIntent(s string) Intent {
	switch Intent(strings.TrimSpace(s)) {
	case IntentBookAppointment:
		return IntentBookAppointment
	case IntentReschedule:
		return IntentReschedule
	case IntentCancelAppointment:
		return IntentCancelAppointment
	case IntentCheckAvailability:
		return IntentCheckAvailability
	default:
		return IntentUnclear
	}
}

// SlotRequest carries the appointment preferences extracted from a single
// utterance. Fields are empty when absent; it is produced fresh each turn
// and only survives as a copy on the conversation.
type SlotRequest struct {
	DoctorName    string `json:"doctor_name,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
	PreferredDate string `json:"preferred_date,omitempty"`
	PreferredTime string `json:"preferred_time,omitempty"`
	Urgency       bool   `json:"urgency"`
}

// Empty reports whether no preference field was extracted.
func (r SlotRequest) Empty() bool {
	return r.DoctorName == "" && r.Specialty == "" &&
		r.PreferredDate == "" && r.PreferredTime == "" && !r.Urgency
}

// Classification is the classifier's output for one turn.
type Classification struct {
	Intent Intent      `json:"intent"`
	Slots  SlotRequest `json:"slots"`
}

// Slot is a bookable doctor/specialty/time triple in the availability store.
type Slot struct {
	ID         string    `json:"id"`
	DoctorName string    `json:"doctor_name"`
	Specialty  string    `json:"specialty"`
	StartsAt   time.Time `json:"starts_at"`
	Available  bool      `json:"is_available"`
	ReservedBy string    `json:"reserved_by,omitempty"`
}

// Conversation is the aggregate root for one booking dialogue. It is owned
// by the Engine and mutated only through engine transitions.
type Conversation struct {
	ID                  string      `json:"id"`
	PatientID           string      `json:"patient_id"`
	PatientName         string      `json:"patient_name"`
	State               State       `json:"state"`
	Language            string      `json:"language"`
	Dialect             string      `json:"dialect"`
	LastNormalizedInput string      `json:"last_normalized_input,omitempty"`
	ExtractedSlots      SlotRequest `json:"extracted_slots"`
	// ProposedSlotID points at the match awaiting a yes/no while confirming.
	ProposedSlotID string `json:"proposed_slot_id,omitempty"`
	// MatchedSlotID is set exactly once, on the confirmed transition.
	MatchedSlotID string     `json:"matched_slot_id,omitempty"`
	BookingRef    string     `json:"booking_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

var (
	// ErrConversationNotFound indicates the conversation ID is unknown.
	ErrConversationNotFound = errors.New("booking: conversation not found")
	// ErrSlotUnavailable indicates a reservation conflict: the slot was
	// taken between proposal and confirmation.
	ErrSlotUnavailable = errors.New("booking: slot no longer available")
	// ErrSlotNotFound indicates the referenced slot does not exist.
	ErrSlotNotFound = errors.New("booking: slot not found")
	// ErrInvalidState indicates an operation was attempted from a state
	// that does not permit it.
	ErrInvalidState = errors.New("booking: invalid state for operation")
)
