// Package coordinator implements OptimizationCoordinator (§4.3): chooses
// which customers and techs participate in a solve, how many VRPSolver runs
// are needed, and how to aggregate results for each of the three modes
// (refine, full_per_day, cross_day).
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"logistics/internal/routing/domain"
	"logistics/internal/routing/matrix"
	"logistics/internal/routing/solver"
	"logistics/pkg/logger"
	"logistics/pkg/telemetry"
)

// Mode is one of the three §4.3 optimization modes.
type Mode string

const (
	ModeRefine     Mode = "refine"
	ModeFullPerDay Mode = "full_per_day"
	ModeCrossDay   Mode = "cross_day"
)

// Request describes the parameters of one optimize call (§4.3).
type Request struct {
	Mode                Mode
	ServiceDay          domain.Day
	SelectedTechIDs     []string
	UnlockedCustomerIDs []string
	Speed               solver.SpeedProfile
	IncludeUnassigned   bool
	IncludePending      bool
	IncludeSaturday     bool
	IncludeSunday       bool
	// Today is the reference point for TempAssignment.Expired and day
	// filtering.
	Today time.Time
}

// RouteStop is one stop in the aggregated result (§4.3 "Result shape").
type RouteStop struct {
	CustomerID          string
	Sequence            int
	DistanceFromPrevM   int
	DurationFromPrevMin int
}

// VehicleRoute is one tech's route for one day (§4.3 "Result shape").
type VehicleRoute struct {
	TechID               string
	TechName             string
	TechColor            string
	ServiceDay           domain.Day
	StartLocation        domain.Point
	EndLocation          domain.Point
	Stops                []RouteStop
	TotalCustomers       int
	TotalDistanceMiles   float64
	TotalDurationMinutes int
}

// Summary aggregates metrics across all generated routes (§4.3 "Result
// shape" + §7 "failed_days").
type Summary struct {
	TotalRoutes          int
	TotalCustomers       int
	TotalDistanceMiles   float64
	TotalDurationMinutes int
	FailedDays           []domain.Day
}

// Result is the outcome of optimize: either routes, or an empty list with a
// message (§7 InfeasibleSolve is not an error, just an empty successful
// result).
type Result struct {
	Routes  []VehicleRoute
	Summary Summary
	Message string
}

// DataSource reads external state (techs, customers, effective
// assignments) that Core only owns by reference (§3 "Ownership"). It's
// implemented by the calling service (internal/routing/service), which
// already knows how to wire the tech/customer repositories.
type DataSource interface {
	ActiveTechs(ctx context.Context, tenantID string, selectedTechIDs []string) ([]domain.Tech, error)
	// EligibleCustomers returns the tenant's customers along with their
	// effective (temp-assignment-aware) assigned tech for a given date/day.
	EligibleCustomers(ctx context.Context, tenantID string, day domain.Day, today time.Time, includeUnassigned, includePending bool) ([]CustomerView, error)
}

// CustomerView is a customer plus its effective assignment for a given
// day/date (§3 "Effective assignment").
type CustomerView struct {
	Customer       domain.Customer
	AssignedTechID *string
}

// Coordinator implements §4.3 operate.
type Coordinator struct {
	data   DataSource
	matrix matrix.Provider
	vrp    *solver.VRPSolver
	pool   *solver.Pool
}

// New creates the optimization coordinator.
func New(data DataSource, matrixProvider matrix.Provider, vrp *solver.VRPSolver, pool *solver.Pool) *Coordinator {
	return &Coordinator{data: data, matrix: matrixProvider, vrp: vrp, pool: pool}
}

// Optimize implements §4.3 `optimize(tenant, request)`.
func (c *Coordinator) Optimize(ctx context.Context, tenantID string, req Request) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "Coordinator.Optimize")
	defer span.End()
	span.SetAttributes(attribute.String("mode", string(req.Mode)), attribute.String("tenant_id", tenantID))

	switch req.Mode {
	case ModeRefine:
		return c.optimizeRefine(ctx, tenantID, req)
	case ModeFullPerDay:
		return c.optimizeFullPerDay(ctx, tenantID, req)
	case ModeCrossDay:
		return c.optimizeCrossDay(ctx, tenantID, req)
	default:
		return Result{}, fmt.Errorf("coordinator: unknown mode %q", req.Mode)
	}
}

// daySet returns the active day set for cross_day/full_per_day (§4.3 "Day
// set"): {mon..fri} by default, extended by the include flags.
func daySet(req Request) []domain.Day {
	return domain.DaySet(req.IncludeSaturday, req.IncludeSunday)
}

// optimizeRefine implements §4.3 "Mode: refine": reorders each tech's
// already-assigned customers, never moving them between techs.
func (c *Coordinator) optimizeRefine(ctx context.Context, tenantID string, req Request) (Result, error) {
	techs, err := c.data.ActiveTechs(ctx, tenantID, req.SelectedTechIDs)
	if err != nil {
		return Result{}, err
	}
	if len(techs) == 0 {
		return Result{Message: "no techs available"}, nil
	}

	customers, err := c.data.EligibleCustomers(ctx, tenantID, req.ServiceDay, req.Today, true, true)
	if err != nil {
		return Result{}, err
	}

	byTech := make(map[string][]domain.Customer, len(techs))
	for _, cv := range customers {
		if cv.AssignedTechID == nil {
			continue
		}
		if !cv.Customer.HasCoordinates() || !cv.Customer.ServesOn(req.ServiceDay) {
			continue
		}
		byTech[*cv.AssignedTechID] = append(byTech[*cv.AssignedTechID], cv.Customer)
	}

	var routes []VehicleRoute
	for _, t := range techs {
		group := byTech[t.ID]
		if len(group) == 0 {
			continue
		}
		route, ok, err := c.solveSingleTech(ctx, t, group, req.ServiceDay, req.Speed)
		if err != nil {
			return Result{}, err
		}
		if ok {
			routes = append(routes, route)
		}
	}

	return Result{Routes: routes, Summary: summarize(routes, nil)}, nil
}

// optimizeFullPerDay implements §4.3 "Mode: full_per_day": a single
// VRPSolver solve across every eligible tech and customer for the day.
func (c *Coordinator) optimizeFullPerDay(ctx context.Context, tenantID string, req Request) (Result, error) {
	routes, ok, err := c.solveDay(ctx, tenantID, req.ServiceDay, req)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Message: "no solution for the requested day"}, nil
	}

	return Result{Routes: routes, Summary: summarize(routes, nil)}, nil
}

// optimizeCrossDay implements §4.3 "Mode: cross_day": redistributes
// unlocked_customer_ids across days to reduce weekly workload imbalance,
// then solves each active day separately via full_per_day.
//
// The rebalancing algorithm mirrors the original optimization service's
// approach: single-day customers move to the least-loaded day, multi-day
// customers enumerate every C(days_available, days_per_week) combination
// and pick the one that minimizes the variance of the resulting per-day
// workload.
func (c *Coordinator) optimizeCrossDay(ctx context.Context, tenantID string, req Request) (Result, error) {
	days := daySet(req)
	unlocked := toSet(req.UnlockedCustomerIDs)

	assignments := make(map[string][]domain.Day)
	workload := make(map[domain.Day]int, len(days))
	for _, d := range days {
		workload[d] = 0
	}

	allCustomers, err := c.allWeekCustomers(ctx, tenantID, days, req)
	if err != nil {
		return Result{}, err
	}

	for _, cv := range allCustomers {
		cust := cv.Customer
		var customerDays []domain.Day
		for _, d := range days {
			if cust.ServesOn(d) {
				customerDays = append(customerDays, d)
			}
		}
		assignments[cust.ID] = customerDays
		for _, d := range customerDays {
			workload[d]++
		}
	}

	for _, cv := range allCustomers {
		cust := cv.Customer
		if !unlocked[cust.ID] {
			continue
		}
		currentDays := assignments[cust.ID]
		if len(currentDays) == 0 {
			continue
		}

		if cust.DaysPerWeek <= 1 {
			currentDay := currentDays[0]
			bestDay := currentDay
			minWorkload := workload[currentDay]
			for _, d := range days {
				if workload[d] < minWorkload {
					minWorkload = workload[d]
					bestDay = d
				}
			}
			if bestDay != currentDay {
				workload[currentDay]--
				workload[bestDay]++
				assignments[cust.ID] = []domain.Day{bestDay}
			}
			continue
		}

		best := currentDays
		bestVariance := workloadVariance(workload, currentDays, nil)
		for _, candidate := range combinations(days, cust.DaysPerWeek) {
			variance := workloadVariance(workload, currentDays, candidate)
			if variance < bestVariance {
				bestVariance = variance
				best = candidate
			}
		}
		if !sameDays(best, currentDays) {
			for _, d := range currentDays {
				workload[d]--
			}
			for _, d := range best {
				workload[d]++
			}
			assignments[cust.ID] = best
		}
	}

	var allRoutes []VehicleRoute
	var failedDays []domain.Day
	for _, d := range days {
		hasAny := false
		for _, ds := range assignments {
			for _, day := range ds {
				if day == d {
					hasAny = true
					break
				}
			}
			if hasAny {
				break
			}
		}
		if !hasAny {
			continue
		}

		dayReq := req
		dayReq.ServiceDay = d
		routes, ok, err := c.solveDay(ctx, tenantID, d, dayReq)
		if err != nil {
			logger.Log.Error("cross_day: day solve failed", "day", d, "error", err)
			failedDays = append(failedDays, d)
			continue
		}
		if !ok {
			failedDays = append(failedDays, d)
			continue
		}
		allRoutes = append(allRoutes, routes...)
	}

	return Result{Routes: allRoutes, Summary: summarize(allRoutes, failedDays)}, nil
}

// solveDay runs one full_per_day solve for a specific day: reads active
// techs and eligible customers, solves the VRP, converts the result into
// VehicleRoute.
func (c *Coordinator) solveDay(ctx context.Context, tenantID string, day domain.Day, req Request) ([]VehicleRoute, bool, error) {
	techs, err := c.data.ActiveTechs(ctx, tenantID, req.SelectedTechIDs)
	if err != nil {
		return nil, false, err
	}
	if len(techs) == 0 {
		return nil, false, nil
	}

	customers, err := c.data.EligibleCustomers(ctx, tenantID, day, req.Today, req.IncludeUnassigned, req.IncludePending)
	if err != nil {
		return nil, false, err
	}

	var eligible []domain.Customer
	for _, cv := range customers {
		if !cv.Customer.HasCoordinates() || !cv.Customer.ServesOn(day) {
			continue
		}
		eligible = append(eligible, cv.Customer)
	}
	if len(eligible) == 0 {
		return nil, false, nil
	}

	points := make([]domain.Point, 0, len(techs)*2+len(eligible))
	for _, t := range techs {
		points = append(points, t.Start, t.End)
	}
	for _, cust := range eligible {
		points = append(points, cust.Location)
	}

	result, err := c.matrix.GetMatrix(ctx, points)
	if err != nil {
		return nil, false, err
	}

	vehicles := make([]solver.VehicleSpec, len(techs))
	for i, t := range techs {
		vehicles[i] = solver.VehicleSpec{TechID: t.ID, Start: t.Start, End: t.End, Capacity: t.Capacity()}
	}

	specs := make([]solver.CustomerSpec, len(eligible))
	for i, cust := range eligible {
		specs[i] = solver.CustomerSpec{CustomerID: cust.ID, Location: cust.Location, EffectiveServiceMin: cust.EffectiveServiceMin()}
	}

	distFn := matrixLookupFunc(points, result)

	solved, err := solver.Run(ctx, c.pool, func() solver.SolveResult {
		return c.vrp.Solve(ctx, vehicles, specs, distFn, req.Speed)
	})
	if err != nil {
		return nil, false, err
	}
	if solved.Infeasible && len(solved.Vehicles) == 0 {
		return nil, false, nil
	}

	byTech := make(map[string]domain.Tech, len(techs))
	for _, t := range techs {
		byTech[t.ID] = t
	}

	routes := make([]VehicleRoute, 0, len(solved.Vehicles))
	for _, v := range solved.Vehicles {
		t := byTech[v.TechID]
		routes = append(routes, toVehicleRoute(t, day, v))
	}

	return routes, true, nil
}

// SolveSingleTech exposes the one-vehicle TSP solve used by refine mode to
// TempAssignmentService and DailyRouteMaterializer (internal/routing/service),
// which need the identical matrix+solver wiring outside an `optimize` call.
func (c *Coordinator) SolveSingleTech(ctx context.Context, t domain.Tech, customers []domain.Customer, day domain.Day, speed solver.SpeedProfile) (VehicleRoute, bool, error) {
	return c.solveSingleTech(ctx, t, customers, day, speed)
}

// solveSingleTech solves a one-tech TSP (used by refine, TempAssignmentService,
// and DailyRouteMaterializer).
func (c *Coordinator) solveSingleTech(ctx context.Context, t domain.Tech, customers []domain.Customer, day domain.Day, speed solver.SpeedProfile) (VehicleRoute, bool, error) {
	points := make([]domain.Point, 0, len(customers)+2)
	points = append(points, t.Start, t.End)
	for _, cust := range customers {
		points = append(points, cust.Location)
	}

	result, err := c.matrix.GetMatrix(ctx, points)
	if err != nil {
		return VehicleRoute{}, false, err
	}

	vehicle := solver.VehicleSpec{TechID: t.ID, Start: t.Start, End: t.End, Capacity: t.Capacity()}
	specs := make([]solver.CustomerSpec, len(customers))
	for i, cust := range customers {
		specs[i] = solver.CustomerSpec{CustomerID: cust.ID, Location: cust.Location, EffectiveServiceMin: cust.EffectiveServiceMin()}
	}

	distFn := matrixLookupFunc(points, result)

	solved, err := solver.Run(ctx, c.pool, func() solver.SolveResult {
		return c.vrp.Solve(ctx, []solver.VehicleSpec{vehicle}, specs, distFn, speed)
	})
	if err != nil {
		return VehicleRoute{}, false, err
	}
	if len(solved.Vehicles) == 0 {
		return VehicleRoute{}, false, nil
	}

	return toVehicleRoute(t, day, solved.Vehicles[0]), true, nil
}

// allWeekCustomers collects the effective customer assignment for every day
// of the week in daySet, deduplicated by customer ID and sorted by ID: a
// customer appears once, and its ServesOn determines participation across
// several days (§4.3 cross_day steps 1-2).
func (c *Coordinator) allWeekCustomers(ctx context.Context, tenantID string, days []domain.Day, req Request) ([]CustomerView, error) {
	seen := make(map[string]CustomerView)
	for _, d := range days {
		views, err := c.data.EligibleCustomers(ctx, tenantID, d, req.Today, req.IncludeUnassigned, req.IncludePending)
		if err != nil {
			return nil, err
		}
		for _, v := range views {
			seen[v.Customer.ID] = v
		}
	}

	out := make([]CustomerView, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Customer.ID < out[j].Customer.ID })

	return out, nil
}

func toVehicleRoute(t domain.Tech, day domain.Day, v solver.VehicleResult) VehicleRoute {
	stops := make([]RouteStop, len(v.Stops))
	for i, s := range v.Stops {
		stops[i] = RouteStop{
			CustomerID:          s.CustomerID,
			Sequence:            i + 1,
			DistanceFromPrevM:   s.DistanceFromPrevM,
			DurationFromPrevMin: s.DurationFromPrevMin,
		}
	}

	return VehicleRoute{
		TechID:               t.ID,
		TechName:             t.Name,
		TechColor:            t.Color,
		ServiceDay:           day,
		StartLocation:        t.Start,
		EndLocation:          t.End,
		Stops:                stops,
		TotalCustomers:       len(stops),
		TotalDistanceMiles:   metersToMiles(v.TotalDistanceMeters),
		TotalDurationMinutes: v.TotalDurationMinutes,
	}
}

func summarize(routes []VehicleRoute, failedDays []domain.Day) Summary {
	s := Summary{FailedDays: failedDays}
	for _, r := range routes {
		s.TotalRoutes++
		s.TotalCustomers += r.TotalCustomers
		s.TotalDistanceMiles += r.TotalDistanceMiles
		s.TotalDurationMinutes += r.TotalDurationMinutes
	}
	return s
}

func metersToMiles(meters int) float64 {
	return roundTo2(float64(meters) / metersPerMile)
}

const metersPerMile = 1609.34

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// workloadVariance mirrors the original optimization service's
// _calculate_workload_variance: the variance of per-day workload after a
// hypothetical move of a customer from oldDays to newDays.
func workloadVariance(workload map[domain.Day]int, oldDays, newDays []domain.Day) float64 {
	test := make(map[domain.Day]int, len(workload))
	for d, n := range workload {
		test[d] = n
	}
	for _, d := range oldDays {
		test[d]--
	}
	for _, d := range newDays {
		test[d]++
	}

	var sum, sumSq float64
	n := float64(len(test))
	for _, v := range test {
		sum += float64(v)
	}
	mean := sum / n
	for _, v := range test {
		diff := float64(v) - mean
		sumSq += diff * diff
	}
	return sumSq / n
}

// combinations enumerates every C(len(days), k) subset of days of size k,
// in deterministic lexicographic order (§4.3 "enumerate all
// C(days_available, days_per_week) combinations").
func combinations(days []domain.Day, k int) [][]domain.Day {
	var out [][]domain.Day
	n := len(days)
	if k <= 0 || k > n {
		return out
	}

	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}

	for {
		combo := make([]domain.Day, k)
		for i, idx := range indices {
			combo[i] = days[idx]
		}
		out = append(out, combo)

		i := k - 1
		for i >= 0 && indices[i] == n-k+i {
			i--
		}
		if i < 0 {
			break
		}
		indices[i]++
		for j := i + 1; j < k; j++ {
			indices[j] = indices[j-1] + 1
		}
	}

	return out
}

func sameDays(a, b []domain.Day) bool {
	if len(a) != len(b) {
		return false
	}
	setA := toSet(dayStrings(a))
	for _, d := range b {
		if !setA[string(d)] {
			return false
		}
	}
	return true
}

func dayStrings(days []domain.Day) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = string(d)
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// matrixLookupFunc adapts the MatrixProvider matrix to the
// solver.DistanceDurationFunc contract, matching points by their position
// in the input slice (the same ordering passed to GetMatrix).
func matrixLookupFunc(points []domain.Point, result matrix.Result) solver.DistanceDurationFunc {
	index := make(map[domain.Point]int, len(points))
	for i, p := range points {
		index[p] = i
	}

	return func(from, to domain.Point) (int, int) {
		fi, ok1 := index[from]
		ti, ok2 := index[to]
		if !ok1 || !ok2 {
			return 0, 0
		}
		return result.DistanceMeters[fi][ti], result.DurationMinutes[fi][ti]
	}
}
