// README: Booking storage contract and its PostgreSQL implementation.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripmerge/internal/apperr"
	"tripmerge/internal/types"
)

// Store is the storage collaborator shared by every merge workflow.
type Store interface {
	Get(ctx context.Context, id types.ID) (*Booking, error)
	ListByParent(ctx context.Context, parentID types.ID) ([]*Booking, error)
	// ListMergeable returns standalone approved/confirmed bookings picked up at or after `after`.
	ListMergeable(ctx context.Context, after time.Time) ([]*Booking, error)
	// ListActiveParents returns trip parents that are not completed or cancelled.
	ListActiveParents(ctx context.Context) ([]*Booking, error)
	ListApprovedSince(ctx context.Context, since time.Time) ([]*Booking, error)
	// InTx runs fn in one transaction; any error from fn rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view used for read-validate-write sequences.
type Tx interface {
	GetForUpdate(ctx context.Context, id types.ID) (*Booking, error)
	ListByParent(ctx context.Context, parentID types.ID) ([]*Booking, error)
	Update(ctx context.Context, b *Booking) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const bookingColumns = `
    id, status,
    pickup_address, pickup_lat, pickup_lng, pickup_zone,
    dropoff_address, dropoff_lat, dropoff_lng, dropoff_zone,
    pickup_time, estimated_dropoff_time,
    request_type, priority, passenger_count, vehicle_type,
    vehicle_id, assigned_vehicle_type, vehicle_capacity, vehicle_lat, vehicle_lng,
    is_merged, has_merged_trips, parent_id, trip_id,
    pickup_sequence, dropoff_sequence, merged_children, optimized_route,
    pre_merge_status, notes, approved_at, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, b *Booking) error {
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	args, err := bookingArgs(b)
	if err != nil {
		return apperr.Persistence("booking.Create", err)
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO bookings (`+bookingColumns+`)
        VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
            $31, $32, $33, $34
        )`, args...)
	return apperr.Persistence("booking.Create", err)
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return getBooking(ctx, s.db, id, false)
}

func (s *PGStore) ListByParent(ctx context.Context, parentID types.ID) ([]*Booking, error) {
	return listBookings(ctx, s.db, `WHERE parent_id = $1 ORDER BY id`, string(parentID))
}

func (s *PGStore) ListMergeable(ctx context.Context, after time.Time) ([]*Booking, error) {
	return listBookings(ctx, s.db, `
        WHERE status IN ('approved', 'confirmed')
          AND is_merged = FALSE
          AND has_merged_trips = FALSE
          AND pickup_time >= $1
        ORDER BY pickup_time, id`, after)
}

func (s *PGStore) ListActiveParents(ctx context.Context) ([]*Booking, error) {
	return listBookings(ctx, s.db, `
        WHERE has_merged_trips = TRUE
          AND status NOT IN ('completed', 'cancelled')
        ORDER BY pickup_time, id`)
}

func (s *PGStore) ListApprovedSince(ctx context.Context, since time.Time) ([]*Booking, error) {
	return listBookings(ctx, s.db, `
        WHERE status = 'approved'
          AND is_merged = FALSE
          AND approved_at >= $1
        ORDER BY approved_at, id`, since)
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
	return apperr.Persistence("booking.InTx", err)
}

type pgTx struct {
	q querier
}

func (t *pgTx) GetForUpdate(ctx context.Context, id types.ID) (*Booking, error) {
	return getBooking(ctx, t.q, id, true)
}

func (t *pgTx) ListByParent(ctx context.Context, parentID types.ID) ([]*Booking, error) {
	return listBookings(ctx, t.q, `WHERE parent_id = $1 ORDER BY id FOR UPDATE`, string(parentID))
}

func (t *pgTx) Update(ctx context.Context, b *Booking) error {
	b.UpdatedAt = time.Now()
	route, err := marshalRoute(b.OptimizedRoute)
	if err != nil {
		return apperr.Persistence("booking.Update", err)
	}
	tag, err := t.q.Exec(ctx, `
        UPDATE bookings
        SET status = $2,
            is_merged = $3,
            has_merged_trips = $4,
            parent_id = $5,
            trip_id = $6,
            pickup_sequence = $7,
            dropoff_sequence = $8,
            merged_children = $9,
            optimized_route = $10,
            pre_merge_status = $11,
            notes = $12,
            updated_at = $13
        WHERE id = $1`,
		string(b.ID),
		string(b.Status),
		b.IsMerged,
		b.HasMergedTrips,
		idPtr(b.ParentID),
		b.TripID,
		b.PickupSequence,
		b.DropoffSequence,
		idStrings(b.MergedChildren),
		route,
		statusPtr(b.PreMergeStatus),
		b.Notes,
		b.UpdatedAt,
	)
	if err != nil {
		return apperr.Persistence("booking.Update", err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.NotFound("booking.Update", b.ID, "booking not found")
	}
	return nil
}

func getBooking(ctx context.Context, q querier, id types.ID, forUpdate bool) (*Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, sql, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("booking.Get", id, "booking not found")
	}
	if err != nil {
		return nil, apperr.Persistence("booking.Get", err)
	}
	return b, nil
}

func listBookings(ctx context.Context, q querier, where string, args ...any) ([]*Booking, error) {
	rows, err := q.Query(ctx, `SELECT `+bookingColumns+` FROM bookings `+where, args...)
	if err != nil {
		return nil, apperr.Persistence("booking.List", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, apperr.Persistence("booking.List", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("booking.List", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (*Booking, error) {
	var b Booking
	var (
		vehicleID, vehicleType *string
		vehicleCapacity        *int
		vehicleLat, vehicleLng *float64
		parentID, preMerge     *string
		children               []string
		route                  []byte
	)
	err := row.Scan(
		&b.ID, &b.Status,
		&b.Pickup.Address, &b.Pickup.Point.Lat, &b.Pickup.Point.Lng, &b.Pickup.Zone,
		&b.Dropoff.Address, &b.Dropoff.Point.Lat, &b.Dropoff.Point.Lng, &b.Dropoff.Zone,
		&b.PickupTime, &b.EstimatedDropoffTime,
		&b.RequestType, &b.Priority, &b.PassengerCount, &b.VehicleType,
		&vehicleID, &vehicleType, &vehicleCapacity, &vehicleLat, &vehicleLng,
		&b.IsMerged, &b.HasMergedTrips, &parentID, &b.TripID,
		&b.PickupSequence, &b.DropoffSequence, &children, &route,
		&preMerge, &b.Notes, &b.ApprovedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if vehicleID != nil {
		v := &Vehicle{ID: types.ID(*vehicleID)}
		if vehicleType != nil {
			v.Type = *vehicleType
		}
		if vehicleCapacity != nil {
			v.Capacity = *vehicleCapacity
		}
		if vehicleLat != nil && vehicleLng != nil {
			v.LastPosition = &types.Point{Lat: *vehicleLat, Lng: *vehicleLng}
		}
		b.Vehicle = v
	}
	if parentID != nil {
		p := types.ID(*parentID)
		b.ParentID = &p
	}
	if preMerge != nil {
		s := Status(*preMerge)
		b.PreMergeStatus = &s
	}
	for _, c := range children {
		b.MergedChildren = append(b.MergedChildren, types.ID(c))
	}
	if len(route) > 0 {
		var r Route
		if err := json.Unmarshal(route, &r); err != nil {
			return nil, fmt.Errorf("decode optimized_route for %s: %w", b.ID, err)
		}
		b.OptimizedRoute = &r
	}
	return &b, nil
}

func bookingArgs(b *Booking) ([]any, error) {
	route, err := marshalRoute(b.OptimizedRoute)
	if err != nil {
		return nil, err
	}
	var (
		vehicleID, vehicleType *string
		vehicleCapacity        *int
		vehicleLat, vehicleLng *float64
	)
	if b.Vehicle != nil {
		id := string(b.Vehicle.ID)
		vehicleID = &id
		vehicleType = &b.Vehicle.Type
		vehicleCapacity = &b.Vehicle.Capacity
		if b.Vehicle.LastPosition != nil {
			vehicleLat = &b.Vehicle.LastPosition.Lat
			vehicleLng = &b.Vehicle.LastPosition.Lng
		}
	}
	return []any{
		string(b.ID), string(b.Status),
		b.Pickup.Address, b.Pickup.Point.Lat, b.Pickup.Point.Lng, b.Pickup.Zone,
		b.Dropoff.Address, b.Dropoff.Point.Lat, b.Dropoff.Point.Lng, b.Dropoff.Zone,
		b.PickupTime, b.EstimatedDropoffTime,
		b.RequestType, b.Priority, b.PassengerCount, b.VehicleType,
		vehicleID, vehicleType, vehicleCapacity, vehicleLat, vehicleLng,
		b.IsMerged, b.HasMergedTrips, idPtr(b.ParentID), b.TripID,
		b.PickupSequence, b.DropoffSequence, idStrings(b.MergedChildren), route,
		statusPtr(b.PreMergeStatus), b.Notes, b.ApprovedAt, b.CreatedAt, b.UpdatedAt,
	}, nil
}

func marshalRoute(r *Route) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func statusPtr(v *Status) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func idStrings(ids []types.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
