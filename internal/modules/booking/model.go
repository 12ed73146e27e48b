// README: Booking aggregate, stop kinds and the persisted trip route payload.
package booking

import (
	"fmt"
	"time"

	"tripmerge/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusApproved  Status = "approved"
	StatusAssigned  Status = "assigned"
	StatusMerged    Status = "merged"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// MergeableStatuses are the statuses a standalone booking may be merged from.
var MergeableStatuses = []Status{StatusApproved, StatusConfirmed}

func (s Status) Mergeable() bool {
	for _, m := range MergeableStatuses {
		if s == m {
			return true
		}
	}
	return false
}

// Terminal reports whether the booking no longer takes part in any trip.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Location struct {
	Address string      `json:"address"`
	Point   types.Point `json:"point"`
	Zone    string      `json:"zone"`
}

type Vehicle struct {
	ID           types.ID     `json:"id"`
	Type         string       `json:"type"`
	Capacity     int          `json:"capacity"`
	LastPosition *types.Point `json:"last_position,omitempty"`
}

type Booking struct {
	ID                   types.ID   `json:"id"`
	Status               Status     `json:"status"`
	Pickup               Location   `json:"pickup"`
	Dropoff              Location   `json:"dropoff"`
	PickupTime           time.Time  `json:"pickup_time"`
	EstimatedDropoffTime *time.Time `json:"estimated_dropoff_time,omitempty"`
	RequestType          string     `json:"request_type"`
	Priority             string     `json:"priority"`
	PassengerCount       int        `json:"passenger_count"`
	VehicleType          string     `json:"vehicle_type"`
	Vehicle              *Vehicle   `json:"vehicle,omitempty"`

	IsMerged        bool       `json:"is_merged"`
	HasMergedTrips  bool       `json:"has_merged_trips"`
	ParentID        *types.ID  `json:"parent_id,omitempty"`
	TripID          *string    `json:"trip_id,omitempty"`
	PickupSequence  *int       `json:"pickup_sequence,omitempty"`
	DropoffSequence *int       `json:"dropoff_sequence,omitempty"`
	MergedChildren  []types.ID `json:"merged_children,omitempty"`
	OptimizedRoute  *Route     `json:"optimized_route,omitempty"`
	PreMergeStatus  *Status    `json:"pre_merge_status,omitempty"`
	Notes           string     `json:"notes,omitempty"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// DropoffTimeOrDefault falls back to one hour after pickup when no estimate exists.
func (b *Booking) DropoffTimeOrDefault() time.Time {
	if b.EstimatedDropoffTime != nil {
		return *b.EstimatedDropoffTime
	}
	return b.PickupTime.Add(time.Hour)
}

// IsTripParent reports whether the booking is the aggregate root of a merge group.
func (b *Booking) IsTripParent() bool {
	return b.HasMergedTrips
}

// Standalone reports whether the booking belongs to no trip.
func (b *Booking) Standalone() bool {
	return !b.IsMerged && b.ParentID == nil && !b.HasMergedTrips
}

// AppendNote adds an audit line to the booking's notes.
func (b *Booking) AppendNote(at time.Time, format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	if b.Notes == "" {
		b.Notes = line
		return
	}
	b.Notes += "\n" + line
}

// ClearRouteFields drops trip sequencing from the booking.
func (b *Booking) ClearRouteFields() {
	b.PickupSequence = nil
	b.DropoffSequence = nil
	b.OptimizedRoute = nil
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	cp := *b
	if b.EstimatedDropoffTime != nil {
		t := *b.EstimatedDropoffTime
		cp.EstimatedDropoffTime = &t
	}
	if b.Vehicle != nil {
		v := *b.Vehicle
		if b.Vehicle.LastPosition != nil {
			p := *b.Vehicle.LastPosition
			v.LastPosition = &p
		}
		cp.Vehicle = &v
	}
	if b.ParentID != nil {
		id := *b.ParentID
		cp.ParentID = &id
	}
	if b.TripID != nil {
		id := *b.TripID
		cp.TripID = &id
	}
	if b.PickupSequence != nil {
		n := *b.PickupSequence
		cp.PickupSequence = &n
	}
	if b.DropoffSequence != nil {
		n := *b.DropoffSequence
		cp.DropoffSequence = &n
	}
	if b.MergedChildren != nil {
		cp.MergedChildren = append([]types.ID(nil), b.MergedChildren...)
	}
	if b.OptimizedRoute != nil {
		cp.OptimizedRoute = b.OptimizedRoute.Clone()
	}
	if b.PreMergeStatus != nil {
		s := *b.PreMergeStatus
		cp.PreMergeStatus = &s
	}
	if b.ApprovedAt != nil {
		t := *b.ApprovedAt
		cp.ApprovedAt = &t
	}
	return &cp
}
