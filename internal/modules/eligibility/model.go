// README: Eligibility checkpoints and evaluation results.
package eligibility

import (
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/types"
)

// Checkpoint names one compatibility test. Declaration order is evaluation order.
type Checkpoint int

const (
	CheckpointNone Checkpoint = iota
	CheckpointAlreadyMerged
	CheckpointPickup
	CheckpointDropoff
	CheckpointType
	CheckpointPriority
	CheckpointTime
	CheckpointVehicle
	CheckpointCapacity
)

func (c Checkpoint) String() string {
	switch c {
	case CheckpointNone:
		return "none"
	case CheckpointAlreadyMerged:
		return "already_merged"
	case CheckpointPickup:
		return "pickup"
	case CheckpointDropoff:
		return "dropoff"
	case CheckpointType:
		return "type"
	case CheckpointPriority:
		return "priority"
	case CheckpointTime:
		return "time"
	case CheckpointVehicle:
		return "vehicle"
	case CheckpointCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

func (c Checkpoint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DefaultManualCapacity is the seat limit for operator merges when no vehicle is known.
const DefaultManualCapacity = 4

type Result struct {
	Eligible bool       `json:"eligible"`
	FailedAt Checkpoint `json:"failed_at"`
	Reason   string     `json:"reason,omitempty"`
}

type Rejection struct {
	ID         types.ID   `json:"id"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Reason     string     `json:"reason"`
}

type BatchResult struct {
	Eligible   []*booking.Booking `json:"eligible"`
	Ineligible []Rejection        `json:"ineligible"`
}

// FailureCounts tallies rejections per checkpoint for this batch only.
func (r BatchResult) FailureCounts() map[Checkpoint]int {
	out := make(map[Checkpoint]int)
	for _, rej := range r.Ineligible {
		out[rej.Checkpoint]++
	}
	return out
}
