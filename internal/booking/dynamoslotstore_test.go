package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/medbridge/voicebook/pkg/logging"
)

type mockDynamo struct {
	scanOutputs []*dynamodb.ScanOutput
	scanInputs  []*dynamodb.ScanInput
	scanErr     error

	getOutput *dynamodb.GetItemOutput
	getErr    error

	putInput *dynamodb.PutItemInput
	putErr   error

	updateInput *dynamodb.UpdateItemInput
	updateErr   error
}

func (m *mockDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.scanInputs = append(m.scanInputs, in)
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	out := m.scanOutputs[0]
	m.scanOutputs = m.scanOutputs[1:]
	return out, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput != nil {
		return m.getOutput, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInput = in
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func marshalSlotItem(t *testing.T, item slotItem) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		t.Fatalf("failed to marshal slot item: %v", err)
	}
	return av
}

func TestDynamoSlotStore_PutRefusesOverwrite(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoSlotStore(mock, "appointment_slots", logging.Default())

	err := store.Put(context.Background(), Slot{
		ID:         "slot-1",
		DoctorName: "Dr. Lee Hui Ling",
		Specialty:  "Cardiology",
		StartsAt:   time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		Available:  true,
	})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if mock.putInput == nil {
		t.Fatal("expected PutItem to be called")
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(slotId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}

	var stored slotItem
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored slot: %v", err)
	}
	if stored.SpecialtyLC != "cardiology" {
		t.Fatalf("expected lowercased specialty to be persisted, got %q", stored.SpecialtyLC)
	}
	if stored.StartsAt != "2026-09-01T09:00:00Z" {
		t.Fatalf("expected RFC3339 start time, got %q", stored.StartsAt)
	}
}

func TestDynamoSlotStore_QueryPaginatesAndOrders(t *testing.T) {
	mock := &mockDynamo{
		scanOutputs: []*dynamodb.ScanOutput{
			{
				Items: []map[string]types.AttributeValue{
					marshalSlotItem(t, slotItem{SlotID: "late", Specialty: "Cardiology", StartsAt: "2026-09-02T09:00:00Z", Available: true}),
				},
				LastEvaluatedKey: map[string]types.AttributeValue{
					"slotId": &types.AttributeValueMemberS{Value: "late"},
				},
			},
			{
				Items: []map[string]types.AttributeValue{
					marshalSlotItem(t, slotItem{SlotID: "early", Specialty: "Cardiology", StartsAt: "2026-09-01T09:00:00Z", Available: true}),
					marshalSlotItem(t, slotItem{SlotID: "broken", Specialty: "Cardiology", StartsAt: "not-a-time", Available: true}),
				},
			},
		},
	}
	store := NewDynamoSlotStore(mock, "appointment_slots", logging.Default())

	slots, err := store.Query(context.Background(), "cardiology")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}

	if len(mock.scanInputs) != 2 {
		t.Fatalf("expected 2 scan pages, got %d", len(mock.scanInputs))
	}
	if len(slots) != 2 {
		t.Fatalf("expected malformed record skipped and 2 slots, got %d", len(slots))
	}
	if slots[0].ID != "early" || slots[1].ID != "late" {
		t.Fatalf("expected ascending time order, got %s then %s", slots[0].ID, slots[1].ID)
	}

	values := mock.scanInputs[0].ExpressionAttributeValues
	spec, ok := values[":spec"].(*types.AttributeValueMemberS)
	if !ok || spec.Value != "cardiology" {
		t.Fatalf("expected lowercased specialty filter, got %v", values[":spec"])
	}
}

func TestDynamoSlotStore_ReserveIsConditionalUpdate(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoSlotStore(mock, "appointment_slots", logging.Default())

	ref, err := store.Reserve(context.Background(), "a1b2c3d4-e5f6", "conv-1")
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if ref != "BK-A1B2C3D4" {
		t.Fatalf("unexpected booking reference %q", ref)
	}

	if mock.updateInput == nil {
		t.Fatal("expected UpdateItem to be called")
	}
	expr := mock.updateInput.ConditionExpression
	if expr == nil || *expr != "attribute_exists(slotId) AND (available = :avail OR reservedBy = :conv)" {
		t.Fatalf("unexpected condition expression %v", expr)
	}
}

func TestDynamoSlotStore_ReserveConflict(t *testing.T) {
	mock := &mockDynamo{
		updateErr: &types.ConditionalCheckFailedException{},
		getOutput: &dynamodb.GetItemOutput{
			Item: marshalSlotItem(t, slotItem{
				SlotID: "slot-1", Specialty: "Cardiology",
				StartsAt: "2026-09-01T09:00:00Z", ReservedBy: "conv-other",
			}),
		},
	}
	store := NewDynamoSlotStore(mock, "appointment_slots", logging.Default())

	_, err := store.Reserve(context.Background(), "slot-1", "conv-1")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestDynamoSlotStore_ReserveMissingSlot(t *testing.T) {
	mock := &mockDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoSlotStore(mock, "appointment_slots", logging.Default())

	_, err := store.Reserve(context.Background(), "no-such-slot", "conv-1")
	if !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestDynamoSlotStore_ReservePropagatesTransportError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewDynamoSlotStore(mock, "appointment_slots", logging.Default())

	_, err := store.Reserve(context.Background(), "slot-1", "conv-1")
	if err == nil || errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}
