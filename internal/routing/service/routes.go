package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"logistics/internal/routing/coordinator"
	"logistics/internal/routing/domain"
	"logistics/internal/routing/repository"
	"logistics/internal/routing/solver"
	"logistics/pkg/apperror"
	"logistics/pkg/telemetry"
)

// SaveRoutes implements operation 2 (spec §4.4 "Save contract").
func (s *RoutingService) SaveRoutes(ctx context.Context, tenantID string, day domain.Day, routes []RouteInput) (SaveRoutesResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RoutingService.SaveRoutes")
	defer span.End()

	inputs := make([]repository.SaveRoutesInput, len(routes))
	for i, r := range routes {
		inputs[i] = repository.SaveRoutesInput{
			TechID:               r.TechID,
			ServiceDay:           day,
			RouteDate:            r.RouteDate,
			StopCustomerIDs:      r.StopCustomerIDs,
			TotalDistanceMiles:   r.TotalDistanceMiles,
			TotalDurationMinutes: r.TotalDurationMinutes,
		}
	}

	ids, err := s.routes.SaveRoutes(ctx, tenantID, day, inputs)
	if err != nil {
		telemetry.SetError(ctx, err)
		if errors.Is(err, repository.ErrTechNotInTenant) {
			return SaveRoutesResult{}, apperror.Wrap(err, apperror.CodePermissionDenied, "tech does not belong to tenant")
		}
		return SaveRoutesResult{}, apperror.Wrap(err, apperror.CodePersistence, "failed to save routes")
	}

	return SaveRoutesResult{SavedRouteIDs: ids}, nil
}

// GetDayRoutes implements operation 3, the DailyRouteMaterializer (spec
// §4.6): reads existing TechRoutes for the key, and if none exist,
// generates one per active tech with eligible customers via single-tech
// TSP, persists, then resolves customer ids to display records.
func (s *RoutingService) GetDayRoutes(ctx context.Context, tenantID string, day domain.Day, routeDate *time.Time) ([]RouteWithStops, error) {
	ctx, span := telemetry.StartSpan(ctx, "RoutingService.GetDayRoutes")
	defer span.End()

	date := truncateToday()
	if routeDate != nil {
		date = truncateDate(*routeDate)
	}

	existing, err := s.routes.GetRoutes(ctx, tenantID, day)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodePersistence, "failed to load routes")
	}

	if len(existing) == 0 {
		if err := s.materialize(ctx, tenantID, day, date); err != nil {
			telemetry.SetError(ctx, err)
			return nil, err
		}
		existing, err = s.routes.GetRoutes(ctx, tenantID, day)
		if err != nil {
			telemetry.SetError(ctx, err)
			return nil, apperror.Wrap(err, apperror.CodePersistence, "failed to reload routes")
		}
	}

	return s.resolveDisplay(ctx, tenantID, existing)
}

// materialize computes and persists one TechRoute per active tech with an
// eligible, coordinate-bearing customer set for the day (spec §4.6 step 2).
// Techs with no eligible customers produce no row.
func (s *RoutingService) materialize(ctx context.Context, tenantID string, day domain.Day, date time.Time) error {
	techs, err := s.data.ActiveTechs(ctx, tenantID, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to load active techs")
	}
	if len(techs) == 0 {
		return nil
	}

	customers, err := s.data.EligibleCustomers(ctx, tenantID, day, date, true, true)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to load eligible customers")
	}

	byTech := groupEligibleByTech(customers, day)

	var inputs []repository.SaveRoutesInput
	for _, t := range techs {
		group := byTech[t.ID]
		if len(group) == 0 {
			continue
		}

		route, ok, err := s.coordinator.SolveSingleTech(ctx, t, group, day, solver.SpeedQuick)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "single-tech solve failed")
		}
		if !ok {
			continue
		}

		stopIDs := make([]string, len(route.Stops))
		for i, stop := range route.Stops {
			stopIDs[i] = stop.CustomerID
		}

		inputs = append(inputs, repository.SaveRoutesInput{
			TechID:               t.ID,
			ServiceDay:           day,
			RouteDate:            date,
			StopCustomerIDs:      stopIDs,
			TotalDistanceMiles:   route.TotalDistanceMiles,
			TotalDurationMinutes: route.TotalDurationMinutes,
		})
	}

	if len(inputs) == 0 {
		return nil
	}

	if _, err := s.routes.SaveRoutes(ctx, tenantID, day, inputs); err != nil {
		return apperror.Wrap(err, apperror.CodePersistence, "failed to persist materialized routes")
	}

	return nil
}

// groupEligibleByTech partitions eligible customers by their effective
// assigned tech, keeping only those with coordinates and a matching
// schedule for day (spec §4.6 step 2, reused by SetTempAssignment step 7).
func groupEligibleByTech(customers []coordinator.CustomerView, day domain.Day) map[string][]domain.Customer {
	byTech := make(map[string][]domain.Customer)
	for _, cv := range customers {
		if cv.AssignedTechID == nil || !cv.Customer.HasCoordinates() || !cv.Customer.ServesOn(day) {
			continue
		}
		byTech[*cv.AssignedTechID] = append(byTech[*cv.AssignedTechID], cv.Customer)
	}
	return byTech
}

// resolveDisplay joins each TechRoute's stop_sequence with customer display
// records (spec §4.4 "Read contract", §4.6 step 3).
func (s *RoutingService) resolveDisplay(ctx context.Context, tenantID string, routes []domain.TechRoute) ([]RouteWithStops, error) {
	var allIDs []string
	for _, r := range routes {
		allIDs = append(allIDs, r.StopSequence...)
	}

	var display map[string]CustomerDisplay
	if len(allIDs) > 0 && s.customers != nil {
		resolved, err := s.customers.ResolveCustomers(ctx, tenantID, allIDs)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to resolve customer display records")
		}
		display = resolved
	}

	out := make([]RouteWithStops, 0, len(routes))
	for _, r := range routes {
		stopByCustomer := make(map[string]domain.RouteStop, len(r.Stops))
		for _, stop := range r.Stops {
			stopByCustomer[stop.CustomerID] = stop
		}

		stops := make([]RouteStopView, 0, len(r.StopSequence))
		for i, customerID := range r.StopSequence {
			d := display[customerID]
			view := RouteStopView{
				CustomerID: customerID,
				Name:       d.Name,
				Address:    shortAddress(d.Address),
				Sequence:   i + 1,
			}
			if stop, ok := stopByCustomer[customerID]; ok {
				view.Sequence = stop.Sequence
			}
			stops = append(stops, view)
		}

		out = append(out, RouteWithStops{
			RouteID:              r.ID,
			TechID:               r.TechID,
			ServiceDay:           r.ServiceDay,
			RouteDate:            r.RouteDate,
			Stops:                stops,
			TotalDistanceMiles:   r.TotalDistanceMiles,
			TotalDurationMinutes: r.TotalDurationMinutes,
		})
	}

	return out, nil
}

// shortAddress keeps the first two comma-separated parts of an address
// (spec §4.6 step 3: "short address = first two comma-separated address
// parts").
func shortAddress(address string) string {
	parts := strings.SplitN(address, ",", 3)
	if len(parts) <= 2 {
		return address
	}
	return strings.TrimSpace(parts[0]) + ", " + strings.TrimSpace(parts[1])
}

// ReorderStops implements operation 4a (spec §4.4 "Stop reorder").
func (s *RoutingService) ReorderStops(ctx context.Context, tenantID, routeID string, stops []StopSequence) error {
	ctx, span := telemetry.StartSpan(ctx, "RoutingService.ReorderStops")
	defer span.End()

	desired := make(map[string]int, len(stops))
	for _, seq := range stops {
		desired[seq.StopID] = seq.NewSeq
	}

	err := s.routes.ReorderStops(ctx, tenantID, routeID, desired)
	if err != nil {
		telemetry.SetError(ctx, err)
		if err == repository.ErrRouteNotFound {
			return apperror.Wrap(err, apperror.CodeNotFound, "route not found")
		}
		return apperror.Wrap(err, apperror.CodePersistence, "failed to reorder stops")
	}

	return nil
}

// MoveStop implements operation 4b (spec §4.4 "Stop move").
func (s *RoutingService) MoveStop(ctx context.Context, tenantID, stopID, targetRouteID string, insertSeq int) error {
	ctx, span := telemetry.StartSpan(ctx, "RoutingService.MoveStop")
	defer span.End()

	err := s.routes.MoveStop(ctx, tenantID, stopID, targetRouteID, insertSeq)
	if err != nil {
		telemetry.SetError(ctx, err)
		switch err {
		case repository.ErrRouteNotFound:
			return apperror.Wrap(err, apperror.CodeNotFound, "target route not found")
		case repository.ErrStopNotFound:
			return apperror.Wrap(err, apperror.CodeNotFound, "stop not found")
		default:
			return apperror.Wrap(err, apperror.CodePersistence, "failed to move stop")
		}
	}

	return nil
}

// DeleteDayRoutes implements operation 6 (spec §6).
func (s *RoutingService) DeleteDayRoutes(ctx context.Context, tenantID string, day domain.Day) error {
	ctx, span := telemetry.StartSpan(ctx, "RoutingService.DeleteDayRoutes")
	defer span.End()

	if err := s.routes.DeleteDayRoutes(ctx, tenantID, day); err != nil {
		telemetry.SetError(ctx, err)
		return apperror.Wrap(err, apperror.CodePersistence, "failed to delete day routes")
	}

	return nil
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
