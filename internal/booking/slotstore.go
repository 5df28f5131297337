package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/medbridge/voicebook/pkg/logging"
)

// SlotStore is the availability-store port. Query is a pure read; Reserve
// is the single mutating operation and must resolve concurrent attempts on
// the same slot so that exactly one succeeds.
type SlotStore interface {
	Query(ctx context.Context, specialtyFilter string) ([]Slot, error)
	Reserve(ctx context.Context, slotID, conversationID string) (string, error)
	Get(ctx context.Context, slotID string) (*Slot, error)
}

// BookingRef derives the fixed-format booking reference from a slot ID:
// "BK-" plus the first 8 hex characters of the ID, uppercased. Deriving it
// from the slot keeps reservation retries idempotent.
func BookingRef(slotID string) string {
	compact := strings.ToUpper(strings.ReplaceAll(slotID, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "BK-" + compact
}

type slotDynamoAPI interface {
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// slotItem is the DynamoDB projection of a Slot. specialtyLC carries the
// lowercased specialty so contains() can match case-insensitively.
type slotItem struct {
	SlotID      string `dynamodbav:"slotId"`
	DoctorName  string `dynamodbav:"doctorName"`
	Specialty   string `dynamodbav:"specialty"`
	SpecialtyLC string `dynamodbav:"specialtyLC"`
	StartsAt    string `dynamodbav:"startsAt"`
	Available   bool   `dynamodbav:"available"`
	ReservedBy  string `dynamodbav:"reservedBy,omitempty"`
}

// DynamoSlotStore persists appointment slots in DynamoDB. Reservation is a
// single conditional update (reserve only while still available), never a
// read-then-write.
type DynamoSlotStore struct {
	client    slotDynamoAPI
	tableName string
	logger    *logging.Logger
}

func NewDynamoSlotStore(client slotDynamoAPI, tableName string, logger *logging.Logger) *DynamoSlotStore {
	if client == nil {
		panic("booking: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("booking: slots table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoSlotStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ SlotStore = (*DynamoSlotStore)(nil)

// Put inserts a slot, refusing to overwrite an existing one.
func (s *DynamoSlotStore) Put(ctx context.Context, slot Slot) error {
	item, err := attributevalue.MarshalMap(slotItem{
		SlotID:      slot.ID,
		DoctorName:  slot.DoctorName,
		Specialty:   slot.Specialty,
		SpecialtyLC: strings.ToLower(slot.Specialty),
		StartsAt:    slot.StartsAt.UTC().Format(time.RFC3339),
		Available:   slot.Available,
		ReservedBy:  slot.ReservedBy,
	})
	if err != nil {
		return fmt.Errorf("booking: failed to marshal slot: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(slotId)"),
	})
	if err != nil {
		return fmt.Errorf("booking: failed to persist slot: %w", err)
	}
	return nil
}

// Query returns available slots, optionally narrowed by a case-insensitive
// specialty substring, ordered by start time ascending.
func (s *DynamoSlotStore) Query(ctx context.Context, specialtyFilter string) ([]Slot, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("available = :avail"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":avail": &types.AttributeValueMemberBOOL{Value: true},
		},
	}
	if filter := strings.ToLower(strings.TrimSpace(specialtyFilter)); filter != "" {
		input.FilterExpression = aws.String("available = :avail AND contains(specialtyLC, :spec)")
		input.ExpressionAttributeValues[":spec"] = &types.AttributeValueMemberS{Value: filter}
	}

	var slots []Slot
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("booking: failed to scan slots: %w", err)
		}

		var items []slotItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("booking: failed to decode slots: %w", err)
		}
		for _, item := range items {
			slot, err := item.toSlot()
			if err != nil {
				s.logger.Warn("skipping malformed slot record", "slot_id", item.SlotID, "error", err)
				continue
			}
			slots = append(slots, slot)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartsAt.Before(slots[j].StartsAt)
	})
	return slots, nil
}

// Reserve atomically flips the slot to unavailable for the conversation.
// A repeat call by the same conversation returns the same reference; any
// other contender observes ErrSlotUnavailable.
func (s *DynamoSlotStore) Reserve(ctx context.Context, slotID, conversationID string) (string, error) {
	if slotID == "" {
		return "", ErrSlotNotFound
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"slotId": &types.AttributeValueMemberS{Value: slotID},
		},
		UpdateExpression: aws.String("SET available = :unavail, reservedBy = :conv"),
		ConditionExpression: aws.String(
			"attribute_exists(slotId) AND (available = :avail OR reservedBy = :conv)",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":avail":   &types.AttributeValueMemberBOOL{Value: true},
			":unavail": &types.AttributeValueMemberBOOL{Value: false},
			":conv":    &types.AttributeValueMemberS{Value: conversationID},
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			if _, getErr := s.Get(ctx, slotID); errors.Is(getErr, ErrSlotNotFound) {
				return "", ErrSlotNotFound
			}
			return "", ErrSlotUnavailable
		}
		return "", fmt.Errorf("booking: failed to reserve slot: %w", err)
	}

	return BookingRef(slotID), nil
}

// Get fetches a slot by ID.
func (s *DynamoSlotStore) Get(ctx context.Context, slotID string) (*Slot, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"slotId": &types.AttributeValueMemberS{Value: slotID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("booking: failed to fetch slot: %w", err)
	}
	if out.Item == nil {
		return nil, ErrSlotNotFound
	}

	var item slotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("booking: failed to decode slot: %w", err)
	}
	slot, err := item.toSlot()
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (i slotItem) toSlot() (Slot, error) {
	startsAt, err := time.Parse(time.RFC3339, i.StartsAt)
	if err != nil {
		return Slot{}, fmt.Errorf("booking: bad slot time %q: %w", i.StartsAt, err)
	}
	return Slot{
		ID:         i.SlotID,
		DoctorName: i.DoctorName,
		Specialty:  i.Specialty,
		StartsAt:   startsAt,
		Available:  i.Available,
		ReservedBy: i.ReservedBy,
	}, nil
}

// MemorySlotStore mirrors the DynamoDB semantics in memory: Reserve is a
// single conditional update under the lock.
type MemorySlotStore struct {
	mu    sync.Mutex
	slots map[string]Slot
}

func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{slots: make(map[string]Slot)}
}

var _ SlotStore = (*MemorySlotStore)(nil)

func (s *MemorySlotStore) Put(_ context.Context, slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.slots[slot.ID]; exists {
		return fmt.Errorf("booking: slot %s already exists", slot.ID)
	}
	s.slots[slot.ID] = slot
	return nil
}

func (s *MemorySlotStore) Query(_ context.Context, specialtyFilter string) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := strings.ToLower(strings.TrimSpace(specialtyFilter))
	var slots []Slot
	for _, slot := range s.slots {
		if !slot.Available {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(slot.Specialty), filter) {
			continue
		}
		slots = append(slots, slot)
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartsAt.Before(slots[j].StartsAt)
	})
	return slots, nil
}

func (s *MemorySlotStore) Reserve(_ context.Context, slotID, conversationID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return "", ErrSlotNotFound
	}
	if !slot.Available && slot.ReservedBy != conversationID {
		return "", ErrSlotUnavailable
	}

	slot.Available = false
	slot.ReservedBy = conversationID
	s.slots[slotID] = slot
	return BookingRef(slotID), nil
}

func (s *MemorySlotStore) Get(_ context.Context, slotID string) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	copied := slot
	return &copied, nil
}
