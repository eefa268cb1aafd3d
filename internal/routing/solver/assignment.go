package solver

import (
	"context"
	"sort"

	"logistics/internal/routing/flow"
	"logistics/internal/routing/flow/graph"
	"logistics/pkg/logger"
)

// AssignmentSolver solves the capacitated customer-to-tech assignment half
// of VRPSolver (spec §4.2): a bipartite min-cost max-flow problem over
// source -> tech -> customer -> sink, solved with the Successive Shortest
// Path / Capacity Scaling algorithms in internal/routing/flow.
//
// The flow phase alone minimizes total depot-to-customer distance subject
// to tech capacity; it does not carry the workload-balance span cost that
// the original CP-SAT solver applies jointly with routing. Solve restores
// proportional fairness with an explicit rebalancing pass after the flow
// converges: every tech is brought up to floor(totalCustomers *
// capacity_t / sum(capacity)) customers, pulling any shortfall from techs
// that hold more than their own minimum share. VRPSolver.balanceWorkload then applies the span-cost
// coefficient itself, relocating customers across already-ordered routes to
// shrink the spread between the busiest and least busy tech.
type AssignmentSolver struct{}

// NewAssignmentSolver creates the assignment solver.
func NewAssignmentSolver() *AssignmentSolver {
	return &AssignmentSolver{}
}

// Vehicle is one tech participating in the assignment.
type Vehicle struct {
	ID       string
	Capacity int
	// StartCost[customerIdx] is the cost (meters) from this tech's start
	// depot to the corresponding customer; indexing matches Customers.
	StartCost []int
}

// AssignmentResult is the outcome of AssignmentSolver.Solve: source-slice
// index -> assigned tech ID.
type AssignmentResult struct {
	// Assignment[i] is the tech ID assigned to customers[i].
	Assignment []string
	// Unassigned holds indices of customers that could not be placed with
	// any tech (combined capacity was insufficient).
	Unassigned []int
}

// Solve builds a min-cost flow network and returns the resulting customer
// assignment. vehicles and their StartCost must agree in length with the
// customer count (len(vehicle.StartCost) == numCustomers for every tech).
func (s *AssignmentSolver) Solve(ctx context.Context, vehicles []Vehicle, numCustomers int) AssignmentResult {
	if numCustomers == 0 || len(vehicles) == 0 {
		unassigned := make([]int, numCustomers)
		for i := range unassigned {
			unassigned[i] = i
		}
		return AssignmentResult{Assignment: make([]string, numCustomers), Unassigned: unassigned}
	}

	// Node numbering: 0 = source, 1..len(vehicles) = techs,
	// len(vehicles)+1..len(vehicles)+numCustomers = customers, last = sink.
	const source = int64(0)
	techBase := int64(1)
	customerBase := techBase + int64(len(vehicles))
	sink := customerBase + int64(numCustomers)

	g := graph.NewResidualGraph()
	for vi, v := range vehicles {
		techNode := techBase + int64(vi)
		g.AddEdgeWithReverse(source, techNode, float64(v.Capacity), 0)
		for ci := 0; ci < numCustomers; ci++ {
			customerNode := customerBase + int64(ci)
			cost := 0.0
			if ci < len(v.StartCost) {
				cost = float64(v.StartCost[ci])
			}
			g.AddEdgeWithReverse(techNode, customerNode, 1, cost)
		}
	}
	for ci := 0; ci < numCustomers; ci++ {
		customerNode := customerBase + int64(ci)
		g.AddEdgeWithReverse(customerNode, sink, 1, 0)
	}

	opts := flow.DefaultSolverOptions()
	result := flow.MinCostMaxFlowWithContext(ctx, g, source, sink, float64(numCustomers), opts)
	if result.Canceled {
		logger.Log.Warn("assignment solve canceled before convergence, using partial flow", "flow", result.Flow, "required", numCustomers)
	}

	assignment := make([]string, numCustomers)
	assignedCount := make(map[string]int, len(vehicles))
	var unassigned []int

	for ci := 0; ci < numCustomers; ci++ {
		customerNode := customerBase + int64(ci)
		found := ""
		for vi, v := range vehicles {
			techNode := techBase + int64(vi)
			if g.GetFlowOnEdge(techNode, customerNode) > 0.5 {
				found = v.ID
				break
			}
		}
		if found == "" {
			unassigned = append(unassigned, ci)
			continue
		}
		assignment[ci] = found
		assignedCount[found]++
	}

	rebalance(vehicles, assignment, assignedCount)

	return AssignmentResult{Assignment: assignment, Unassigned: unassigned}
}

// rebalance implements the proportional-share balancing described on
// AssignmentSolver: every tech is brought up to its proportional minimum
// share of customers while some other tech holds more than its own minimum
// share. The transfer is deterministic: customers are scanned in index
// order, and donor candidates are techs whose current load exceeds their
// target minimum share.
func rebalance(vehicles []Vehicle, assignment []string, assignedCount map[string]int) {
	total := 0
	for _, v := range vehicles {
		total += v.Capacity
	}
	if total == 0 {
		return
	}

	numCustomers := len(assignment)
	minShare := make(map[string]int, len(vehicles))
	for _, v := range vehicles {
		minShare[v.ID] = numCustomers * v.Capacity / total
	}

	// Sort techs by deficit (target minimum - current load), descending,
	// so the largest deficit is closed first.
	order := make([]string, len(vehicles))
	for i, v := range vehicles {
		order[i] = v.ID
	}
	sort.Slice(order, func(i, j int) bool {
		return (minShare[order[i]] - assignedCount[order[i]]) > (minShare[order[j]] - assignedCount[order[j]])
	})

	for _, techID := range order {
		deficit := minShare[techID] - assignedCount[techID]
		for deficit > 0 {
			donorIdx := findDonor(assignment, assignedCount, minShare, techID)
			if donorIdx < 0 {
				break
			}
			assignment[donorIdx] = techID
			assignedCount[techID]++
			deficit--
		}
	}
}

// findDonor looks for a customer belonging to a tech with slack above its
// minimum share, to hand off to the under-filled recipient tech.
func findDonor(assignment []string, assignedCount, minShare map[string]int, recipient string) int {
	for i, techID := range assignment {
		if techID == "" || techID == recipient {
			continue
		}
		if assignedCount[techID] > minShare[techID] {
			assignedCount[techID]--
			return i
		}
	}
	return -1
}
