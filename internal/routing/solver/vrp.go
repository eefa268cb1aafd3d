// Package solver implements VRPSolver (spec §4.2): a capacitated VRP with
// time and distance dimensions plus a workload-balance penalty, split into
// AssignmentSolver (min-cost flow) and VehicleSolver (TSP on lvlath) in
// place of the CP-SAT router the original system used (no equivalent
// binding exists for Go).
package solver

import (
	"context"
	"math"
	"sort"
	"time"

	"logistics/internal/routing/domain"
	"logistics/pkg/logger"
)

// SpeedProfile matches §4.2's "speed_profile": it selects the metaheuristic
// budget used to solve.
type SpeedProfile string

const (
	SpeedQuick    SpeedProfile = "quick"
	SpeedThorough SpeedProfile = "thorough"
)

// quickWallClock / thoroughWallClock are the hard wall-clock ceilings from
// §4.2 "Search parameters": 30s for quick, 120s for thorough.
const (
	quickWallClock    = 30 * time.Second
	thoroughWallClock = 120 * time.Second
)

// quickSpanCost / thoroughSpanCost are the workload-balance span-cost
// coefficients (§4.2 "Workload-balance span cost") applied by
// balanceWorkload below.
const (
	quickSpanCost    = 5000
	thoroughSpanCost = 4000
)

// quickBalanceIterations / thoroughBalanceIterations bound how many
// relocate moves balanceWorkload may attempt per solve, scaled with the
// same speed-profile budget as the wall-clock ceilings above.
const (
	quickBalanceIterations    = 20
	thoroughBalanceIterations = 60
)

// VRP dimensions (§4.2 "Dimensions & costs").
const (
	maxCumulativeTimeMin  = 480     // 8-hour workday.
	maxSlackPerNodeMin    = 60      // allowed idle time between stops.
	maxCumulativeDistance = 200_000 // meters
)

// VehicleSpec describes one transport resource (tech) for VRPSolver: start
// and end depot and capacity. Service time is carried per customer
// (CustomerSpec.EffectiveServiceMin).
type VehicleSpec struct {
	TechID   string
	Start    domain.Point
	End      domain.Point
	Capacity int
}

// CustomerSpec describes one customer node to be routed.
type CustomerSpec struct {
	CustomerID          string
	Location            domain.Point
	EffectiveServiceMin int
}

// StopResult is a single stop within a solved vehicle's route, in visit
// order.
type StopResult struct {
	CustomerID          string
	DistanceFromPrevM   int
	DurationFromPrevMin int
}

// VehicleResult is one tech's route, an output of VRPSolver.Solve (§4.2
// "Outputs").
type VehicleResult struct {
	TechID               string
	Stops                []StopResult
	TotalDistanceMeters  int
	TotalDurationMinutes int
}

// SolveResult is the full outcome of VRPSolver.Solve.
type SolveResult struct {
	Vehicles []VehicleResult
	// Skipped holds customer IDs without coordinates, filtered out before
	// solving (§4.2 "Customer without coordinates").
	Skipped []string
	// Infeasible marks an unsuccessful solve within the time budget (§4.2
	// "Failure"; §7 InfeasibleSolve is not an error, just an empty result).
	Infeasible bool
}

// VRPSolver combines AssignmentSolver and VehicleSolver into the single
// §4.2 operation: with more than one vehicle, it first assigns customers to
// techs (capacitated flow), then orders each tech's stops with a separate
// TSP solve, and finally runs a cross-route relocate pass that applies the
// workload-balance span cost.
type VRPSolver struct {
	assignment *AssignmentSolver
	vehicle    *VehicleSolver
}

// NewVRPSolver creates the composite VRP solver.
func NewVRPSolver() *VRPSolver {
	return &VRPSolver{
		assignment: NewAssignmentSolver(),
		vehicle:    NewVehicleSolver(),
	}
}

// DistanceDurationFunc returns (meters, minutes) for the transition between
// two points; usually backed by the matrix from MatrixProvider, but
// VRPSolver only depends on this contract, not on a concrete source.
type DistanceDurationFunc func(from, to domain.Point) (meters int, minutes int)

// Solve solves the capacitated VRP for the given vehicles and customers.
// With exactly one vehicle, assignment is skipped (every customer belongs
// to the sole tech) — this is the path used by §4.3 "refine" and the
// single-tech recomputations in §4.5/§4.6.
func (s *VRPSolver) Solve(ctx context.Context, vehicles []VehicleSpec, customers []CustomerSpec, dist DistanceDurationFunc, speed SpeedProfile) SolveResult {
	var eligible []CustomerSpec
	var skipped []string
	for _, c := range customers {
		if !c.Location.HasCoords() {
			skipped = append(skipped, c.CustomerID)
			continue
		}
		eligible = append(eligible, c)
	}

	if len(eligible) == 0 || len(vehicles) == 0 {
		return SolveResult{Skipped: skipped}
	}

	deadline := quickWallClock
	if speed == SpeedThorough {
		deadline = thoroughWallClock
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	techOf := make(map[string][]CustomerSpec, len(vehicles))

	if len(vehicles) == 1 {
		techOf[vehicles[0].TechID] = eligible
	} else {
		assignResult := s.assignToTechs(ctx, vehicles, eligible, dist)
		for i, techID := range assignResult.Assignment {
			if techID == "" {
				continue
			}
			techOf[techID] = append(techOf[techID], eligible[i])
		}
		for _, idx := range assignResult.Unassigned {
			skipped = append(skipped, eligible[idx].CustomerID)
		}
	}

	specOf := make(map[string]VehicleSpec, len(vehicles))
	for _, v := range vehicles {
		specOf[v.TechID] = v
	}

	routes := make(map[string]VehicleResult, len(vehicles))
	for techID, group := range techOf {
		if len(group) == 0 {
			continue
		}
		if r, ok := s.solveVehicle(specOf[techID], group, dist); ok {
			routes[techID] = r
		}
	}

	if len(vehicles) > 1 {
		s.balanceWorkload(ctx, vehicles, specOf, techOf, routes, dist, speed)
	}

	result := SolveResult{Skipped: skipped}
	for _, v := range vehicles {
		r, ok := routes[v.TechID]
		if !ok {
			if len(techOf[v.TechID]) > 0 {
				result.Infeasible = true
			}
			continue
		}
		result.Vehicles = append(result.Vehicles, r)
	}

	logSpanBalance(result.Vehicles, speed)

	return result
}

// balanceWorkload runs a cross-route relocate local search (§4.2
// "Workload-balance span cost"): on each pass it picks the busiest tech
// (by workday span) and the least busy tech, then looks for a single
// customer whose move from one to the other lowers the weighted objective
// total_distance + spanCostCoefficient*(max_span-min_span). It is the
// cross-route counterpart of the 2-opt local search VehicleSolver runs
// within one route (EnableLocalSearch), so the span-cost coefficient
// actually shapes the solve instead of only being logged.
func (s *VRPSolver) balanceWorkload(ctx context.Context, vehicles []VehicleSpec, specOf map[string]VehicleSpec, techOf map[string][]CustomerSpec, routes map[string]VehicleResult, dist DistanceDurationFunc, speed SpeedProfile) {
	if len(vehicles) < 2 {
		return
	}

	ordered := make([]VehicleSpec, len(vehicles))
	copy(ordered, vehicles)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TechID < ordered[j].TechID })

	coefficient := float64(spanCostCoefficient(speed))
	maxIterations := quickBalanceIterations
	if speed == SpeedThorough {
		maxIterations = thoroughBalanceIterations
	}

	for iter := 0; iter < maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		donorID, recipientID, ok := pickBalanceCandidates(ordered, techOf, routes)
		if !ok {
			return
		}
		if !s.tryRelocate(ordered, specOf, techOf, routes, dist, donorID, recipientID, coefficient) {
			return
		}
	}
}

// pickBalanceCandidates returns the tech with the largest workday span that
// still has at least one customer to give up (donor) and the tech with the
// smallest span (recipient, which may be idle). ok is false once no
// improving pair exists, e.g. a single route left, or all spans equal.
func pickBalanceCandidates(vehicles []VehicleSpec, techOf map[string][]CustomerSpec, routes map[string]VehicleResult) (donor, recipient string, ok bool) {
	maxSpan := -1
	minSpan := math.MaxInt
	for _, v := range vehicles {
		span := 0
		if r, exists := routes[v.TechID]; exists {
			span = workdaySpan(r)
		}
		if len(techOf[v.TechID]) > 0 && span > maxSpan {
			maxSpan = span
			donor = v.TechID
		}
		if span < minSpan {
			minSpan = span
			recipient = v.TechID
		}
	}
	if donor == "" || donor == recipient || maxSpan <= minSpan {
		return "", "", false
	}
	return donor, recipient, true
}

// tryRelocate looks for the single best customer to move from donorID's
// route to recipientID's route, applying it if any candidate lowers the
// weighted objective. Returns false if no improving move exists.
func (s *VRPSolver) tryRelocate(vehicles []VehicleSpec, specOf map[string]VehicleSpec, techOf map[string][]CustomerSpec, routes map[string]VehicleResult, dist DistanceDurationFunc, donorID, recipientID string, coefficient float64) bool {
	donorGroup := techOf[donorID]
	recipientGroup := techOf[recipientID]
	recipientSpec := specOf[recipientID]
	donorSpec := specOf[donorID]

	before := weightedObjective(vehicles, routes, coefficient)

	bestGain := 0.0
	bestIdx := -1
	var bestDonorRoute, bestRecipientRoute VehicleResult
	bestDonorHasRoute := false

	for i := range donorGroup {
		if len(recipientGroup)+1 > recipientSpec.Capacity {
			break
		}

		newDonorGroup := make([]CustomerSpec, 0, len(donorGroup)-1)
		newDonorGroup = append(newDonorGroup, donorGroup[:i]...)
		newDonorGroup = append(newDonorGroup, donorGroup[i+1:]...)

		newRecipientGroup := make([]CustomerSpec, 0, len(recipientGroup)+1)
		newRecipientGroup = append(newRecipientGroup, recipientGroup...)
		newRecipientGroup = append(newRecipientGroup, donorGroup[i])

		recipientRoute, recipientOK := s.solveVehicle(recipientSpec, newRecipientGroup, dist)
		if !recipientOK {
			continue
		}

		var donorRoute VehicleResult
		donorHasRoute := len(newDonorGroup) > 0
		if donorHasRoute {
			var donorOK bool
			donorRoute, donorOK = s.solveVehicle(donorSpec, newDonorGroup, dist)
			if !donorOK {
				continue
			}
		}

		trialRoutes := make(map[string]VehicleResult, len(routes))
		for k, v := range routes {
			trialRoutes[k] = v
		}
		if donorHasRoute {
			trialRoutes[donorID] = donorRoute
		} else {
			delete(trialRoutes, donorID)
		}
		trialRoutes[recipientID] = recipientRoute

		after := weightedObjective(vehicles, trialRoutes, coefficient)
		if gain := before - after; gain > bestGain+1e-6 {
			bestGain = gain
			bestIdx = i
			bestDonorRoute = donorRoute
			bestRecipientRoute = recipientRoute
			bestDonorHasRoute = donorHasRoute
		}
	}

	if bestIdx < 0 {
		return false
	}

	moved := donorGroup[bestIdx]
	newDonorGroup := make([]CustomerSpec, 0, len(donorGroup)-1)
	newDonorGroup = append(newDonorGroup, donorGroup[:bestIdx]...)
	newDonorGroup = append(newDonorGroup, donorGroup[bestIdx+1:]...)
	techOf[donorID] = newDonorGroup
	techOf[recipientID] = append(append([]CustomerSpec{}, recipientGroup...), moved)

	if bestDonorHasRoute {
		routes[donorID] = bestDonorRoute
	} else {
		delete(routes, donorID)
	}
	routes[recipientID] = bestRecipientRoute

	return true
}

// weightedObjective sums the routed distance across every solved vehicle
// and adds the span-cost penalty spanCostCoefficient*(max_span-min_span)
// (§4.2 "Workload-balance span cost"). Vehicles without a route (not yet
// solved, or left idle) don't contribute distance but still participate in
// the span spread once at least one route exists.
func weightedObjective(vehicles []VehicleSpec, routes map[string]VehicleResult, coefficient float64) float64 {
	totalMeters := 0
	minSpan := math.MaxInt
	maxSpan := 0
	any := false
	for _, v := range vehicles {
		span := 0
		if r, exists := routes[v.TechID]; exists {
			any = true
			totalMeters += r.TotalDistanceMeters
			span = workdaySpan(r)
		}
		if span < minSpan {
			minSpan = span
		}
		if span > maxSpan {
			maxSpan = span
		}
	}
	if !any {
		return 0
	}
	return float64(totalMeters) + coefficient*float64(maxSpan-minSpan)
}

// logSpanBalance reports the workday-span spread across techs after
// balanceWorkload has run, for observability alongside the routing metrics
// recorded in §4.3.
func logSpanBalance(vehicles []VehicleResult, speed SpeedProfile) {
	if len(vehicles) < 2 {
		return
	}

	minSpan, maxSpan := math.MaxInt, 0
	for _, v := range vehicles {
		span := workdaySpan(v)
		if span < minSpan {
			minSpan = span
		}
		if span > maxSpan {
			maxSpan = span
		}
	}

	logger.Log.Debug("vehicle span balance",
		"vehicles", len(vehicles),
		"min_span_min", minSpan,
		"max_span_min", maxSpan,
		"span_cost_coefficient", spanCostCoefficient(speed),
	)
}

// assignToTechs builds and solves the min-cost-flow assignment problem for
// more than one vehicle.
func (s *VRPSolver) assignToTechs(ctx context.Context, vehicles []VehicleSpec, customers []CustomerSpec, dist DistanceDurationFunc) AssignmentResult {
	vs := make([]Vehicle, len(vehicles))
	for vi, v := range vehicles {
		costs := make([]int, len(customers))
		for ci, c := range customers {
			meters, _ := dist(v.Start, c.Location)
			costs[ci] = meters
		}
		vs[vi] = Vehicle{ID: v.TechID, Capacity: v.Capacity, StartCost: costs}
	}

	return s.assignment.Solve(ctx, vs, len(customers))
}

// solveVehicle orders one tech's stops (TSP) and checks the result against
// the time/distance dimension limits (§4.2 "Dimensions & costs"). Returns
// ok=false if no ordering fits within the dimension limits (InfeasibleSolve).
func (s *VRPSolver) solveVehicle(v VehicleSpec, customers []CustomerSpec, dist DistanceDurationFunc) (VehicleResult, bool) {
	if len(customers) == 1 {
		// §4.2 "1 customer -> trivial route, no TSP needed; use direct
		// matrix lookup".
		meters, minutes := dist(v.Start, customers[0].Location)
		endMeters, endMinutes := dist(customers[0].Location, v.End)
		serviceMin := customers[0].EffectiveServiceMin

		totalMinutes := minutes + serviceMin + endMinutes
		totalMeters := meters + endMeters
		if !withinDimensionLimits(totalMinutes, totalMeters) {
			return VehicleResult{}, false
		}

		return VehicleResult{
			TechID: v.TechID,
			Stops: []StopResult{{
				CustomerID:          customers[0].CustomerID,
				DistanceFromPrevM:   meters,
				DurationFromPrevMin: minutes + serviceMin,
			}},
			TotalDistanceMeters:  totalMeters,
			TotalDurationMinutes: totalMinutes,
		}, true
	}

	n := len(customers) + 1
	cost := make([][]float64, n)
	points := make([]domain.Point, n)
	points[0] = v.Start
	for i, c := range customers {
		points[i+1] = c.Location
	}
	for i := 0; i < n; i++ {
		cost[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			meters, _ := dist(points[i], points[j])
			cost[i][j] = float64(meters)
		}
	}

	order, _, err := s.vehicle.Order(cost, len(customers))
	if err != nil || len(order) == 0 {
		return VehicleResult{}, false
	}

	stops := make([]StopResult, len(order))
	prevPoint := v.Start
	totalMeters := 0
	totalMinutes := 0
	for i, customerIdx := range order {
		c := customers[customerIdx]
		meters, minutes := dist(prevPoint, c.Location)
		durationWithService := minutes + c.EffectiveServiceMin

		stops[i] = StopResult{
			CustomerID:          c.CustomerID,
			DistanceFromPrevM:   meters,
			DurationFromPrevMin: durationWithService,
		}
		totalMeters += meters
		totalMinutes += durationWithService
		prevPoint = c.Location
	}

	endMeters, endMinutes := dist(prevPoint, v.End)
	totalMeters += endMeters
	totalMinutes += endMinutes

	if !withinDimensionLimits(totalMinutes, totalMeters) {
		return VehicleResult{}, false
	}

	return VehicleResult{
		TechID:               v.TechID,
		Stops:                stops,
		TotalDistanceMeters:  totalMeters,
		TotalDurationMinutes: totalMinutes,
	}, true
}

// withinDimensionLimits checks a route's time/distance against the
// per-vehicle maximums from §4.2. Per-node slack (up to 60 min) isn't
// modeled explicitly by the flow solve, so it's treated as an allowance
// added to the hard cumulative-time ceiling.
func withinDimensionLimits(totalMinutes, totalMeters int) bool {
	slackAllowance := maxSlackPerNodeMin
	if totalMinutes > maxCumulativeTimeMin+slackAllowance {
		return false
	}
	if totalMeters > maxCumulativeDistance {
		return false
	}
	return true
}

// spanCostCoefficient returns the workload-balance penalty coefficient for
// the given speed profile (§4.2 "Workload-balance span cost"), consumed by
// balanceWorkload's weighted objective.
func spanCostCoefficient(speed SpeedProfile) int {
	if speed == SpeedThorough {
		return thoroughSpanCost
	}
	return quickSpanCost
}

// workdaySpan is a tech's workday length: the total route duration,
// including service time, from first departure to final return.
func workdaySpan(vehicle VehicleResult) int {
	return int(math.Max(0, float64(vehicle.TotalDurationMinutes)))
}
