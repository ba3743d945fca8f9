package models

import "time"

type SlotStatus string

const (
	SlotStatusPending SlotStatus = "pending"
	SlotStatusFired   SlotStatus = "fired"
	SlotStatusDropped SlotStatus = "dropped"
)

type ScheduleSlot struct {
	ID         string     `json:"id"`
	FiringTime time.Time  `json:"firing_time"`
	DayIndex   int        `json:"day_index"`
	Status     SlotStatus `json:"status"`
	FiredAt    *time.Time `json:"fired_at,omitempty"`
}
