package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/medbridge/voicebook/internal/observability/metrics"
	"github.com/medbridge/voicebook/pkg/logging"
)

// Canned prompts for turns the pipeline cannot act on.
const (
	clarifyPrompt = "I'm not sure I understood that. " +
		"Could you tell me which doctor or specialty you'd like to book, and when you'd like to come in?"
	reschedulePrompt = "I can see you'd like to reschedule. " +
		"Please contact our clinic directly to reschedule an existing appointment."
	cancelElsewherePrompt = "I can see you'd like to cancel. " +
		"Please contact our clinic directly to cancel an existing appointment."
	reAskPrompt = "I didn't quite catch that. Please say yes to confirm, or no to cancel."
	lostSlotPrompt = "I'm sorry, I lost track of the slot. " +
		"Let's start again — which doctor would you like to see?"
	conflictPrompt = "Sorry, that slot was just taken. " +
		"Please say no and tell me another time that suits you, or try again."
	completedPrompt = "This booking session has already been completed. Please start a new booking."
	cancelledPrompt = "No problem, I've cancelled that booking. " +
		"Feel free to start a new booking whenever you're ready."
)

// StartRequest opens a new booking conversation for a patient.
type StartRequest struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Language    string `json:"language"`
	Dialect     string `json:"dialect"`
}

// TurnResponse is the structured outcome of one conversation turn. Every
// failure path fills ResponseText and State; nothing in the pipeline
// surfaces an unhandled fault to the transport.
type TurnResponse struct {
	ConversationID       string       `json:"conversation_id"`
	ResponseText         string       `json:"response_text"`
	State                State        `json:"state"`
	RequiresConfirmation bool         `json:"requires_confirmation"`
	AvailableSlots       []Slot       `json:"available_slots,omitempty"`
	NormalizedInput      string       `json:"normalized_input,omitempty"`
	ExtractedSlots       *SlotRequest `json:"extracted_slots,omitempty"`
	BookingRef           string       `json:"booking_ref,omitempty"`
	ConfirmedSlot        *Slot        `json:"confirmed_slot,omitempty"`
}

// Engine drives the booking state machine. It is the sole owner of the
// Conversation aggregate and the only component allowed to call the
// availability store's Reserve, and only on an explicit confirmation,
// never straight from a classification.
type Engine struct {
	conversations ConversationStore
	slots         SlotStore
	normalizer    *Normalizer
	classifier    *Classifier
	matcher       *Matcher
	confirmer     Confirmer
	logger        *logging.Logger
	metrics       *metrics.PipelineMetrics
	tracer        trace.Tracer
}

// NewEngine wires the pipeline together. All collaborators are injected;
// the engine never reaches back into its caller.
func NewEngine(
	conversations ConversationStore,
	slots SlotStore,
	normalizer *Normalizer,
	classifier *Classifier,
	logger *logging.Logger,
	m *metrics.PipelineMetrics,
) *Engine {
	if conversations == nil {
		panic("booking: conversation store cannot be nil")
	}
	if slots == nil {
		panic("booking: slot store cannot be nil")
	}
	if normalizer == nil {
		panic("booking: normalizer cannot be nil")
	}
	if classifier == nil {
		panic("booking: classifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		conversations: conversations,
		slots:         slots,
		normalizer:    normalizer,
		classifier:    classifier,
		matcher:       NewMatcher(slots),
		logger:        logger,
		metrics:       m,
		tracer:        otel.Tracer("voicebook.internal.booking.engine"),
	}
}

// Start creates a conversation in the collecting state and returns the
// welcome message.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*TurnResponse, error) {
	ctx, span := e.tracer.Start(ctx, "booking.start")
	defer span.End()

	conv := &Conversation{
		ID:          uuid.NewString(),
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		State:       StateCollecting,
		Language:    req.Language,
		Dialect:     req.Dialect,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.conversations.Save(ctx, conv); err != nil {
		span.RecordError(err)
		return nil, err
	}

	name := req.PatientName
	if name == "" {
		name = "there"
	}
	e.logger.Info("booking conversation started", "conversation_id", conv.ID, "patient_id", conv.PatientID)
	return &TurnResponse{
		ConversationID: conv.ID,
		ResponseText: fmt.Sprintf(
			"Hello %s! I'm Aria, your voice booking assistant. "+
				"Which doctor or specialty would you like to book, and when are you available?", name),
		State: StateCollecting,
	}, nil
}

// ProcessTurn runs one raw transcript through the pipeline:
// normalize → classify (or confirmation check) → match → respond.
func (e *Engine) ProcessTurn(ctx context.Context, conversationID, rawText string) (*TurnResponse, error) {
	ctx, span := e.tracer.Start(ctx, "booking.process_turn")
	defer span.End()

	conv, err := e.conversations.Load(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch conv.State {
	case StateConfirming:
		return e.confirmingTurn(ctx, conv, rawText)
	case StateCollecting:
		return e.collectingTurn(ctx, conv, rawText)
	case StateConfirmed, StateCancelled:
		// Terminal states are absorbing: acknowledge, mutate nothing.
		e.metrics.ObserveTurn(string(conv.State), "terminal")
		return &TurnResponse{
			ConversationID: conv.ID,
			ResponseText:   completedPrompt,
			State:          conv.State,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidState, conv.State)
	}
}

// Confirm executes the confirming→confirmed transition explicitly, e.g.
// from the transport's confirm endpoint. It is subject to the same state
// checks as an in-conversation "yes".
func (e *Engine) Confirm(ctx context.Context, conversationID string) (*TurnResponse, error) {
	ctx, span := e.tracer.Start(ctx, "booking.confirm")
	defer span.End()

	conv, err := e.conversations.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.State != StateConfirming {
		return nil, fmt.Errorf("%w: confirm requires confirming, got %q", ErrInvalidState, conv.State)
	}
	return e.reserveProposed(ctx, conv)
}

// Cancel marks a non-terminal conversation cancelled; the proposed slot
// stays available.
func (e *Engine) Cancel(ctx context.Context, conversationID string) (*TurnResponse, error) {
	ctx, span := e.tracer.Start(ctx, "booking.cancel")
	defer span.End()

	conv, err := e.conversations.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.State.Terminal() {
		return nil, fmt.Errorf("%w: cancel on %q", ErrInvalidState, conv.State)
	}
	return e.cancelConversation(ctx, conv)
}

// Get returns the current conversation snapshot.
func (e *Engine) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	return e.conversations.Load(ctx, conversationID)
}

// collectingTurn gathers preferences and may advance to confirming when a
// classification with matches arrives. It never reserves anything.
func (e *Engine) collectingTurn(ctx context.Context, conv *Conversation, rawText string) (*TurnResponse, error) {
	normalized := e.normalizer.Normalize(ctx, rawText, conv.Language, conv.Dialect)
	classified := e.classifier.Classify(ctx, normalized)
	e.metrics.ObserveTurn(string(StateCollecting), string(classified.Intent))

	switch classified.Intent {
	case IntentBookAppointment, IntentCheckAvailability:
		matches, err := e.matcher.FindMatches(ctx,
			classified.Slots.Specialty,
			classified.Slots.PreferredDate,
			classified.Slots.PreferredTime,
		)
		if err != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			e.logger.Error("availability lookup failed", "conversation_id", conv.ID, "error", err)
			return &TurnResponse{
				ConversationID:  conv.ID,
				ResponseText:    clarifyPrompt,
				State:           conv.State,
				NormalizedInput: normalized,
			}, nil
		}

		prompt := e.confirmer.PrepareConfirmation(classified.Slots, matches)

		conv.LastNormalizedInput = normalized
		conv.ExtractedSlots = classified.Slots
		if len(matches) > 0 {
			conv.ProposedSlotID = matches[0].ID
			conv.State = StateConfirming
		} else {
			conv.ProposedSlotID = ""
		}
		if err := e.conversations.Save(ctx, conv); err != nil {
			return nil, err
		}

		slots := classified.Slots
		return &TurnResponse{
			ConversationID:       conv.ID,
			ResponseText:         prompt,
			State:                conv.State,
			RequiresConfirmation: len(matches) > 0,
			AvailableSlots:       matches,
			NormalizedInput:      normalized,
			ExtractedSlots:       &slots,
		}, nil

	case IntentReschedule:
		return &TurnResponse{
			ConversationID:  conv.ID,
			ResponseText:    reschedulePrompt,
			State:           StateCollecting,
			NormalizedInput: normalized,
		}, nil

	case IntentCancelAppointment:
		return &TurnResponse{
			ConversationID:  conv.ID,
			ResponseText:    cancelElsewherePrompt,
			State:           StateCollecting,
			NormalizedInput: normalized,
		}, nil

	default: // unclear
		return &TurnResponse{
			ConversationID:  conv.ID,
			ResponseText:    clarifyPrompt,
			State:           StateCollecting,
			NormalizedInput: normalized,
		}, nil
	}
}

// confirmingTurn resolves a yes/no reply against the stored proposal.
// Ambiguous replies re-prompt without consulting the classifier.
func (e *Engine) confirmingTurn(ctx context.Context, conv *Conversation, rawText string) (*TurnResponse, error) {
	normalized := e.normalizer.Normalize(ctx, rawText, conv.Language, conv.Dialect)

	switch {
	case e.confirmer.IsConfirmation(normalized):
		e.metrics.ObserveTurn(string(StateConfirming), "confirm")
		return e.reserveProposed(ctx, conv)

	case e.confirmer.IsCancellation(normalized):
		e.metrics.ObserveTurn(string(StateConfirming), "cancel")
		return e.cancelConversation(ctx, conv)

	default:
		e.metrics.ObserveTurn(string(StateConfirming), "ambiguous")
		return &TurnResponse{
			ConversationID:       conv.ID,
			ResponseText:         reAskPrompt,
			State:                StateConfirming,
			RequiresConfirmation: true,
			NormalizedInput:      normalized,
		}, nil
	}
}

// reserveProposed is the only call site of SlotStore.Reserve. It requires
// the slot pointer stored by a prior collecting turn; classification output
// never selects and reserves a slot in the same turn.
func (e *Engine) reserveProposed(ctx context.Context, conv *Conversation) (*TurnResponse, error) {
	if conv.ProposedSlotID == "" {
		// Stored pointer missing or corrupted: recover locally by
		// restarting collection rather than reserving an arbitrary slot.
		e.logger.Warn("confirm attempted without stored slot pointer", "conversation_id", conv.ID)
		conv.State = StateCollecting
		conv.ExtractedSlots = SlotRequest{}
		if err := e.conversations.Save(ctx, conv); err != nil {
			return nil, err
		}
		return &TurnResponse{
			ConversationID: conv.ID,
			ResponseText:   lostSlotPrompt,
			State:          StateCollecting,
		}, nil
	}

	ref, err := e.slots.Reserve(ctx, conv.ProposedSlotID, conv.ID)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrSlotNotFound) {
			// Conflict: the slot went away between proposal and
			// confirmation. Stay in confirming and report distinctly.
			e.metrics.ObserveReservation("conflict")
			e.logger.Warn("reservation conflict",
				"conversation_id", conv.ID, "slot_id", conv.ProposedSlotID, "error", err)
			return &TurnResponse{
				ConversationID:       conv.ID,
				ResponseText:         conflictPrompt,
				State:                StateConfirming,
				RequiresConfirmation: true,
			}, nil
		}
		e.metrics.ObserveReservation("error")
		return nil, err
	}

	now := time.Now().UTC()
	conv.State = StateConfirmed
	conv.MatchedSlotID = conv.ProposedSlotID
	conv.BookingRef = ref
	conv.CompletedAt = &now
	if err := e.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	e.metrics.ObserveReservation("confirmed")

	resp := &TurnResponse{
		ConversationID: conv.ID,
		State:          StateConfirmed,
		BookingRef:     ref,
		ResponseText:   fmt.Sprintf("Great news! Your appointment is confirmed. Your booking reference is %s.", ref),
	}
	if slot, slotErr := e.slots.Get(ctx, conv.MatchedSlotID); slotErr == nil {
		resp.ConfirmedSlot = slot
		resp.ResponseText = fmt.Sprintf(
			"Great news! Your appointment is confirmed. Your booking reference is %s. See you at %s on %s.",
			ref,
			slot.StartsAt.Format("03:04 PM"),
			slot.StartsAt.Format("Monday, 02 January"),
		)
	}
	e.logger.Info("booking confirmed",
		"conversation_id", conv.ID, "slot_id", conv.MatchedSlotID, "booking_ref", ref)
	return resp, nil
}

func (e *Engine) cancelConversation(ctx context.Context, conv *Conversation) (*TurnResponse, error) {
	now := time.Now().UTC()
	conv.State = StateCancelled
	conv.CompletedAt = &now
	if err := e.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	e.logger.Info("booking cancelled", "conversation_id", conv.ID)
	return &TurnResponse{
		ConversationID: conv.ID,
		ResponseText:   cancelledPrompt,
		State:          StateCancelled,
	}, nil
}
