package queue

import (
	"context"

	"github.com/maheshrc27/autoposter/internal/models"
)

const TaskTypeFireSlot = "slot:fire"

type FireSlotPayload struct {
	SlotID string `json:"slot_id"`
}

// Dispatcher arms slots and fires them one at a time through a SlotFirer.
type Dispatcher interface {
	Arm(ctx context.Context, slot models.ScheduleSlot) error
	// Run blocks, firing armed slots, until ctx is done.
	Run(ctx context.Context) error
	Close() error
}

type SlotFirer interface {
	Fire(ctx context.Context, slotID string) error
}
