// Package repository stores the entities Core owns, TechRoute and
// TempAssignment (§3 "Ownership"): everything else (techs, customers,
// tenants) Core only reads through DataSource (internal/routing/coordinator),
// never writes.
package repository

import (
	"context"
	"errors"
	"time"

	"logistics/internal/routing/domain"
)

// Standard repository errors.
var (
	ErrRouteNotFound          = errors.New("tech route not found")
	ErrStopNotFound           = errors.New("route stop not found")
	ErrTechNotInTenant        = errors.New("tech does not belong to tenant")
	ErrTempAssignmentNotFound = errors.New("temp assignment not found")
)

// SaveRoutesInput is one route to persist transactionally (§4.4 "Save
// contract").
type SaveRoutesInput struct {
	TechID               string
	ServiceDay           domain.Day
	RouteDate            time.Time
	StopCustomerIDs      []string
	TotalDistanceMiles   float64
	TotalDurationMinutes int
}

// RouteRepository persists TechRoute (§4.4 RoutePersistence).
type RouteRepository interface {
	// SaveRoutes implements save_routes: verifies the techs belong to the
	// tenant, deletes existing routes for (tenant, service_day), and
	// inserts the new ones — all in one transaction.
	SaveRoutes(ctx context.Context, tenantID string, day domain.Day, routes []SaveRoutesInput) ([]string, error)

	// GetRoutes implements get_routes: every TechRoute for the tenant on a
	// given day, with nested stops ordered by their sequence column.
	GetRoutes(ctx context.Context, tenantID string, day domain.Day) ([]domain.TechRoute, error)

	// GetRoute returns a single route by id, verifying tenant ownership.
	GetRoute(ctx context.Context, tenantID, routeID string) (domain.TechRoute, error)

	// ReorderStops implements reorder_stops: accepts the desired (stop_id,
	// new_seq) pairs but GUARANTEES a dense 1..N renumbering regardless of
	// whether the input is internally consistent (§4.4 "Stop reorder").
	ReorderStops(ctx context.Context, tenantID, routeID string, desired map[string]int) error

	// MoveStop implements move_stop: removes a stop from its source route,
	// inserts it into the target route at insertSeq (clamped to
	// [1,len+1]), and densely renumbers both sides.
	MoveStop(ctx context.Context, tenantID, stopID, targetRouteID string, insertSeq int) error

	// DeleteDayRoutes deletes every TechRoute for the tenant on a given day
	// (transport-layer operation 6, §6).
	DeleteDayRoutes(ctx context.Context, tenantID string, day domain.Day) error

	// DeleteTechDayRoute deletes one tech's route for (day, date) - used by
	// TempAssignmentService before recomputing (§4.5 step 7).
	DeleteTechDayRoute(ctx context.Context, tenantID, techID string, day domain.Day, date time.Time) error

	// InsertRoute inserts a single route without touching other techs'
	// routes for the same day - used by TempAssignmentService after
	// DeleteTechDayRoute (§4.5 step 7), unlike SaveRoutes which rebuilds
	// the whole day.
	InsertRoute(ctx context.Context, tenantID string, day domain.Day, route SaveRoutesInput) (string, error)
}

// TempAssignmentRepository persists TempAssignment (§4.5
// TempAssignmentService).
type TempAssignmentRepository interface {
	// PurgeExpired deletes every temporary assignment for the tenant with
	// assignment_date < today-6d (§4.5 step 1).
	PurgeExpired(ctx context.Context, tenantID string, today time.Time) error

	// Find returns the current (non-expired) temporary assignment for
	// (customer, service_day, date), if one exists.
	Find(ctx context.Context, tenantID, customerID string, day domain.Day, date time.Time) (*domain.TempAssignment, error)

	// Delete removes a temporary assignment by its key, if it exists; not
	// an error if it's already gone.
	Delete(ctx context.Context, tenantID, customerID string, day domain.Day, date time.Time) error

	// Insert creates a new temporary assignment.
	Insert(ctx context.Context, assignment domain.TempAssignment) error
}
