package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingRef(t *testing.T) {
	tests := []struct {
		slotID string
		want   string
	}{
		{"a1b2c3d4-e5f6-7a8b-9c0d-e1f2a3b4c5d6", "BK-A1B2C3D4"},
		{"short", "BK-SHORT"},
		{"", "BK-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BookingRef(tt.slotID))
	}
}

func TestBookingRefIdempotent(t *testing.T) {
	assert.Equal(t, BookingRef("a1b2c3d4-e5f6"), BookingRef("a1b2c3d4-e5f6"))
}

func putTestSlot(t *testing.T, store *MemorySlotStore, id string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), Slot{
		ID:         id,
		DoctorName: "Dr. Lee Hui Ling",
		Specialty:  "Cardiology",
		StartsAt:   time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		Available:  true,
	}))
}

func TestMemorySlotStoreReserve(t *testing.T) {
	store := NewMemorySlotStore()
	ctx := context.Background()
	putTestSlot(t, store, "slot-1")

	ref, err := store.Reserve(ctx, "slot-1", "conv-a")
	require.NoError(t, err)
	assert.Equal(t, "BK-SLOT1", ref)

	slot, err := store.Get(ctx, "slot-1")
	require.NoError(t, err)
	assert.False(t, slot.Available)
	assert.Equal(t, "conv-a", slot.ReservedBy)
}

func TestMemorySlotStoreReserveIdempotentForOwner(t *testing.T) {
	store := NewMemorySlotStore()
	ctx := context.Background()
	putTestSlot(t, store, "slot-1")

	first, err := store.Reserve(ctx, "slot-1", "conv-a")
	require.NoError(t, err)
	second, err := store.Reserve(ctx, "slot-1", "conv-a")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMemorySlotStoreReserveConflicts(t *testing.T) {
	store := NewMemorySlotStore()
	ctx := context.Background()
	putTestSlot(t, store, "slot-1")

	_, err := store.Reserve(ctx, "slot-1", "conv-a")
	require.NoError(t, err)

	_, err = store.Reserve(ctx, "slot-1", "conv-b")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestMemorySlotStoreReserveMissing(t *testing.T) {
	store := NewMemorySlotStore()

	_, err := store.Reserve(context.Background(), "no-such-slot", "conv-a")
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestMemorySlotStoreReserveExclusive(t *testing.T) {
	store := NewMemorySlotStore()
	ctx := context.Background()
	putTestSlot(t, store, "slot-1")

	const contenders = 16
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Reserve(ctx, "slot-1", fmt.Sprintf("conv-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrSlotUnavailable)
		}
	}
	assert.Equal(t, 1, winners)

	slot, err := store.Get(ctx, "slot-1")
	require.NoError(t, err)
	assert.False(t, slot.Available)
	assert.NotEmpty(t, slot.ReservedBy)
}

func TestMemorySlotStorePutRejectsDuplicate(t *testing.T) {
	store := NewMemorySlotStore()
	putTestSlot(t, store, "slot-1")

	err := store.Put(context.Background(), Slot{ID: "slot-1", Available: true})
	assert.Error(t, err)
}

func TestMemorySlotStoreQueryFiltersReserved(t *testing.T) {
	store := NewMemorySlotStore()
	ctx := context.Background()
	putTestSlot(t, store, "slot-1")
	require.NoError(t, store.Put(ctx, Slot{
		ID:         "slot-2",
		DoctorName: "Dr. Tan Wei Ming",
		Specialty:  "General Practice",
		StartsAt:   time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC),
		Available:  true,
	}))

	_, err := store.Reserve(ctx, "slot-1", "conv-a")
	require.NoError(t, err)

	slots, err := store.Query(ctx, "")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "slot-2", slots[0].ID)
}
