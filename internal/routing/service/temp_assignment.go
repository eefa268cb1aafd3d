package service

import (
	"context"
	"sort"
	"time"

	"logistics/internal/routing/domain"
	"logistics/internal/routing/metrics"
	"logistics/internal/routing/repository"
	"logistics/internal/routing/solver"
	"logistics/pkg/apperror"
	"logistics/pkg/telemetry"
)

// SetTempAssignment implements operation 5, TempAssignmentService (spec
// §4.5), which reassigns one customer to a tech for a single date without
// touching the customer's permanent assigned_tech_id, then regenerates
// routes for every affected tech. Calls sharing (tenant, service_day, date)
// are serialized through s.tempLocks (spec §4.5 "Concurrency").
func (s *RoutingService) SetTempAssignment(ctx context.Context, tenantID, customerID, techID string, day domain.Day) (TempAssignmentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RoutingService.SetTempAssignment")
	defer span.End()

	var succeeded bool
	defer func() { metrics.Get().RecordTempAssignment(succeeded) }()

	today := truncateToday()
	key := tempLockKey(tenantID, day, today)
	s.tempLocks.Lock(key)
	defer s.tempLocks.Unlock(key)

	// Step 1: purge expired temps for the tenant.
	if err := s.temps.PurgeExpired(ctx, tenantID, today); err != nil {
		telemetry.SetError(ctx, err)
		return TempAssignmentResult{}, apperror.Wrap(err, apperror.CodePersistence, "failed to purge expired temp assignments")
	}

	// Step 2: read the current temp assignment, if any, to find prevTech.
	current, err := s.temps.Find(ctx, tenantID, customerID, day, today)
	if err != nil {
		telemetry.SetError(ctx, err)
		return TempAssignmentResult{}, apperror.Wrap(err, apperror.CodePersistence, "failed to read current temp assignment")
	}

	customer, err := s.customers.GetCustomer(ctx, tenantID, customerID)
	if err != nil {
		telemetry.SetError(ctx, err)
		return TempAssignmentResult{}, apperror.Wrap(err, apperror.CodeNotFound, "customer not found")
	}

	var prevTech *string
	if current != nil {
		prevTech = &current.TechID
	} else if customer.AssignedTechID != nil {
		prevTech = customer.AssignedTechID
	}

	// Step 3: delete the current temp, if any.
	if current != nil {
		if err := s.temps.Delete(ctx, tenantID, customerID, day, today); err != nil {
			telemetry.SetError(ctx, err)
			return TempAssignmentResult{}, apperror.Wrap(err, apperror.CodePersistence, "failed to delete current temp assignment")
		}
	}

	// Steps 4-5: insert a new temp only if it differs from the permanent assignment.
	if customer.AssignedTechID == nil || *customer.AssignedTechID != techID {
		if err := s.temps.Insert(ctx, domain.TempAssignment{
			TenantID:       tenantID,
			CustomerID:     customerID,
			TechID:         techID,
			ServiceDay:     day,
			AssignmentDate: today,
		}); err != nil {
			telemetry.SetError(ctx, err)
			return TempAssignmentResult{}, apperror.Wrap(err, apperror.CodePersistence, "failed to insert temp assignment")
		}
	}

	// Step 6: affected = {prevTech, newTech} minus nil, deduplicated.
	affected := affectedTechs(prevTech, techID)

	// Step 7: regenerate routes for every affected tech.
	updated, err := s.regenerateTechRoutes(ctx, tenantID, day, today, affected)
	if err != nil {
		telemetry.SetError(ctx, err)
		return TempAssignmentResult{}, err
	}

	// Step 8.
	succeeded = true
	return TempAssignmentResult{UpdatedRoutes: updated}, nil
}

// affectedTechs returns the distinct, non-nil tech ids among prevTech and
// newTech (spec §4.5 step 6).
func affectedTechs(prevTech *string, newTech string) []string {
	seen := make(map[string]struct{}, 2)
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if prevTech != nil {
		add(*prevTech)
	}
	add(newTech)
	sort.Strings(out)
	return out
}

// regenerateTechRoutes drops and rebuilds each affected tech's route for
// (day, date) from the current effective-assignment customer set (spec §4.5
// step 7), then resolves the regenerated routes for display.
func (s *RoutingService) regenerateTechRoutes(ctx context.Context, tenantID string, day domain.Day, date time.Time, affectedTechIDs []string) ([]RouteWithStops, error) {
	if len(affectedTechIDs) == 0 {
		return nil, nil
	}

	techs, err := s.data.ActiveTechs(ctx, tenantID, affectedTechIDs)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load affected techs")
	}

	customers, err := s.data.EligibleCustomers(ctx, tenantID, day, date, true, true)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load eligible customers")
	}
	byTech := groupEligibleByTech(customers, day)

	var regenerated []domain.TechRoute
	for _, t := range techs {
		if err := s.routes.DeleteTechDayRoute(ctx, tenantID, t.ID, day, date); err != nil {
			return nil, apperror.Wrap(err, apperror.CodePersistence, "failed to delete existing route for tech "+t.ID)
		}

		group := byTech[t.ID]
		if len(group) == 0 {
			continue
		}

		route, ok, err := s.coordinator.SolveSingleTech(ctx, t, group, day, solver.SpeedQuick)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "single-tech solve failed")
		}
		if !ok {
			continue
		}

		stopIDs := make([]string, len(route.Stops))
		for i, stop := range route.Stops {
			stopIDs[i] = stop.CustomerID
		}

		id, err := s.routes.InsertRoute(ctx, tenantID, day, repository.SaveRoutesInput{
			TechID:               t.ID,
			ServiceDay:           day,
			RouteDate:            date,
			StopCustomerIDs:      stopIDs,
			TotalDistanceMiles:   route.TotalDistanceMiles,
			TotalDurationMinutes: route.TotalDurationMinutes,
		})
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodePersistence, "failed to persist regenerated route")
		}

		r, err := s.routes.GetRoute(ctx, tenantID, id)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodePersistence, "failed to reload regenerated route")
		}
		regenerated = append(regenerated, r)
	}

	return s.resolveDisplay(ctx, tenantID, regenerated)
}

func tempLockKey(tenantID string, day domain.Day, date time.Time) string {
	return tenantID + "|" + day.Code() + "|" + date.Format("2006-01-02")
}
