package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotSeeder is implemented by stores that can be preloaded with slots.
type SlotSeeder interface {
	Put(ctx context.Context, slot Slot) error
}

type seedSlot struct {
	doctor    string
	specialty string
	dayOffset int
	hour      int
}

// Demo clinic roster used when the availability store starts empty.
var demoSlots = []seedSlot{
	{"Dr. Tan Wei Ming", "General Practice", 3, 9},
	{"Dr. Tan Wei Ming", "General Practice", 3, 14},
	{"Dr. Tan Wei Ming", "General Practice", 5, 10},
	{"Dr. Tan Wei Ming", "General Practice", 7, 11},
	{"Dr. Lee Hui Ling", "Cardiology", 4, 9},
	{"Dr. Lee Hui Ling", "Cardiology", 4, 15},
	{"Dr. Lee Hui Ling", "Cardiology", 8, 10},
	{"Dr. Kumar Rajan", "Dermatology", 3, 11},
	{"Dr. Kumar Rajan", "Dermatology", 6, 14},
	{"Dr. Kumar Rajan", "Dermatology", 9, 16},
	{"Dr. Wong Beng Huat", "Orthopaedics", 5, 9},
	{"Dr. Wong Beng Huat", "Orthopaedics", 5, 14},
	{"Dr. Wong Beng Huat", "Orthopaedics", 10, 11},
	{"Dr. Wong Beng Huat", "Orthopaedics", 12, 15},
	{"Dr. Lee Hui Ling", "Cardiology", 11, 10},
}

// SeedDemoSlots loads the demo roster into an empty store. Offsets are
// relative to midnight UTC of the current day.
func SeedDemoSlots(ctx context.Context, seeder SlotSeeder) error {
	base := time.Now().UTC().Truncate(24 * time.Hour)
	for _, s := range demoSlots {
		slot := Slot{
			ID:         uuid.NewString(),
			DoctorName: s.doctor,
			Specialty:  s.specialty,
			StartsAt:   base.AddDate(0, 0, s.dayOffset).Add(time.Duration(s.hour) * time.Hour),
			Available:  true,
		}
		if err := seeder.Put(ctx, slot); err != nil {
			return fmt.Errorf("booking: seeding slot for %s: %w", s.doctor, err)
		}
	}
	return nil
}
