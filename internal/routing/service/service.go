// Package service wires OptimizationCoordinator, the route/temp-assignment
// repositories, and the DailyRouteMaterializer behind the six Core
// operations (spec §6), exposed as a plain Go interface that a gRPC or HTTP
// handler would call.
package service

import (
	"context"
	"time"

	"logistics/internal/routing/coordinator"
	"logistics/internal/routing/domain"
	"logistics/internal/routing/metrics"
	"logistics/internal/routing/repository"
	"logistics/internal/routing/solver"
	"logistics/pkg/apperror"
	"logistics/pkg/logger"
	"logistics/pkg/telemetry"
)

// OptimizeRequest mirrors coordinator.Request at the transport boundary
// (spec §4.3).
type OptimizeRequest struct {
	Mode                coordinator.Mode
	ServiceDay          domain.Day
	SelectedTechIDs     []string
	UnlockedCustomerIDs []string
	Speed               solver.SpeedProfile
	IncludeUnassigned   bool
	IncludePending      bool
	IncludeSaturday     bool
	IncludeSunday       bool
}

// OptimizeResult mirrors coordinator.Result.
type OptimizeResult = coordinator.Result

// RouteInput is one route accepted by SaveRoutes.
type RouteInput struct {
	TechID               string
	RouteDate            time.Time
	StopCustomerIDs      []string
	TotalDistanceMiles   float64
	TotalDurationMinutes int
}

// SaveRoutesResult is the outcome of SaveRoutes.
type SaveRoutesResult struct {
	SavedRouteIDs []string
}

// RouteStopView is one resolved, display-ready stop (spec §4.4/§4.6 "read
// contract").
type RouteStopView struct {
	CustomerID string
	Name       string
	Address    string
	Lat        float64
	Lng        float64
	Sequence   int
}

// RouteWithStops is one resolved TechRoute, ready for transport-layer
// serialization.
type RouteWithStops struct {
	RouteID              string
	TechID               string
	ServiceDay           domain.Day
	RouteDate            time.Time
	Stops                []RouteStopView
	TotalDistanceMiles   float64
	TotalDurationMinutes int
}

// StopSequence is one desired (stop_id, new_seq) pair for ReorderStops.
type StopSequence struct {
	StopID string
	NewSeq int
}

// TempAssignmentResult is the outcome of SetTempAssignment (spec §4.5 step 8).
type TempAssignmentResult struct {
	UpdatedRoutes []RouteWithStops
}

// CustomerDisplay is the subset of customer fields needed only for display
// (name, address), resolved from the external Customer/Tech read model
// (spec §6 "Consumed external collaborators") — kept separate from
// domain.Customer because the Core's own routing logic never needs them.
type CustomerDisplay struct {
	ID      string
	Name    string
	Address string
}

// CustomerDirectory resolves display records for a set of customer ids,
// scoped to tenant (spec §4.4 "Read contract", §4.6 step 3), and single
// full customer records for SetTempAssignment's permanent-assignment
// lookup (spec §4.5 step 2).
type CustomerDirectory interface {
	ResolveCustomers(ctx context.Context, tenantID string, customerIDs []string) (map[string]CustomerDisplay, error)
	GetCustomer(ctx context.Context, tenantID, customerID string) (domain.Customer, error)
}

// Service exposes the six transport-agnostic Core operations (spec §6.FULL).
type Service interface {
	Optimize(ctx context.Context, tenantID string, req OptimizeRequest) (OptimizeResult, error)
	SaveRoutes(ctx context.Context, tenantID string, day domain.Day, routes []RouteInput) (SaveRoutesResult, error)
	GetDayRoutes(ctx context.Context, tenantID string, day domain.Day, routeDate *time.Time) ([]RouteWithStops, error)
	ReorderStops(ctx context.Context, tenantID, routeID string, stops []StopSequence) error
	MoveStop(ctx context.Context, tenantID, stopID, targetRouteID string, insertSeq int) error
	SetTempAssignment(ctx context.Context, tenantID, customerID, techID string, day domain.Day) (TempAssignmentResult, error)
	DeleteDayRoutes(ctx context.Context, tenantID string, day domain.Day) error
}

// RoutingService is the concrete Service implementation.
type RoutingService struct {
	coordinator *coordinator.Coordinator
	routes      repository.RouteRepository
	temps       repository.TempAssignmentRepository
	customers   CustomerDirectory
	data        coordinator.DataSource
	vrp         *solver.VRPSolver
	pool        *solver.Pool

	tempLocks keyedMutex
}

// New assembles a RoutingService from its collaborators.
func New(
	coord *coordinator.Coordinator,
	routes repository.RouteRepository,
	temps repository.TempAssignmentRepository,
	customers CustomerDirectory,
	data coordinator.DataSource,
	vrp *solver.VRPSolver,
	pool *solver.Pool,
) *RoutingService {
	return &RoutingService{
		coordinator: coord,
		routes:      routes,
		temps:       temps,
		customers:   customers,
		data:        data,
		vrp:         vrp,
		pool:        pool,
	}
}

// Optimize implements operation 1 (spec §6, §4.3).
func (s *RoutingService) Optimize(ctx context.Context, tenantID string, req OptimizeRequest) (OptimizeResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RoutingService.Optimize")
	defer span.End()

	if !req.ServiceDay.Valid() && req.Mode != coordinator.ModeCrossDay {
		err := apperror.NewWithField(apperror.CodeInvalidArgument, "service_day is required for this mode", "service_day")
		telemetry.SetError(ctx, err)
		return OptimizeResult{}, err
	}

	start := time.Now()
	result, err := s.coordinator.Optimize(ctx, tenantID, coordinator.Request{
		Mode:                req.Mode,
		ServiceDay:          req.ServiceDay,
		SelectedTechIDs:     req.SelectedTechIDs,
		UnlockedCustomerIDs: req.UnlockedCustomerIDs,
		Speed:               req.Speed,
		IncludeUnassigned:   req.IncludeUnassigned,
		IncludePending:      req.IncludePending,
		IncludeSaturday:     req.IncludeSaturday,
		IncludeSunday:       req.IncludeSunday,
		Today:               truncateToday(),
	})
	duration := time.Since(start)
	if err != nil {
		metrics.Get().RecordOptimize(string(req.Mode), false, false, duration)
		telemetry.SetError(ctx, err)
		logger.Log.Error("optimize failed", "tenant_id", tenantID, "mode", req.Mode, "error", err)
		return OptimizeResult{}, apperror.Wrap(err, apperror.CodeInternal, "optimize failed")
	}

	infeasible := len(result.Routes) == 0 && result.Message != ""
	metrics.Get().RecordOptimize(string(req.Mode), true, infeasible, duration)
	for _, route := range result.Routes {
		metrics.Get().RecordRouteStops(string(req.Mode), len(route.Stops))
	}

	return result, nil
}

// truncateToday returns the current date with the time component zeroed,
// matching TechRoute.route_date / TempAssignment.assignment_date semantics
// (spec §3).
func truncateToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
