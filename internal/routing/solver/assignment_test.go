package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignmentSolver_RespectsCapacity(t *testing.T) {
	s := NewAssignmentSolver()

	vehicles := []Vehicle{
		{ID: "t1", Capacity: 1, StartCost: []int{10, 10, 10}},
		{ID: "t2", Capacity: 2, StartCost: []int{10, 10, 10}},
	}

	result := s.Solve(context.Background(), vehicles, 3)

	assert.Empty(t, result.Unassigned)
	counts := map[string]int{}
	for _, techID := range result.Assignment {
		counts[techID]++
	}
	assert.LessOrEqual(t, counts["t1"], 1)
	assert.LessOrEqual(t, counts["t2"], 2)
	assert.Equal(t, 3, counts["t1"]+counts["t2"])
}

func TestAssignmentSolver_PrefersCheaperTech(t *testing.T) {
	s := NewAssignmentSolver()

	// far's proportional minimum share is floor(2*1/6) = 0, so the
	// rebalancing pass leaves the flow's cheaper choice in place.
	vehicles := []Vehicle{
		{ID: "near", Capacity: 5, StartCost: []int{1, 1}},
		{ID: "far", Capacity: 1, StartCost: []int{1000, 1000}},
	}

	result := s.Solve(context.Background(), vehicles, 2)

	assert.Equal(t, "near", result.Assignment[0])
	assert.Equal(t, "near", result.Assignment[1])
}

func TestAssignmentSolver_RebalancesProportionally(t *testing.T) {
	// 5 customers, T1 capacity 10, T2 capacity 15 (ratio 1.5).
	// Minimum share: T1 = floor(5*10/25) = 2, T2 = floor(5*15/25) = 3.
	// T2 is geographically closer to every customer, so a bare flow solve
	// would hand T2 all 5 - rebalancing must return at least 2 to T1.
	s := NewAssignmentSolver()

	near := make([]int, 5)
	far := make([]int, 5)
	for i := range near {
		near[i] = 1
		far[i] = 100
	}

	vehicles := []Vehicle{
		{ID: "t1", Capacity: 10, StartCost: far},
		{ID: "t2", Capacity: 15, StartCost: near},
	}

	result := s.Solve(context.Background(), vehicles, 5)

	counts := map[string]int{}
	for _, techID := range result.Assignment {
		counts[techID]++
	}
	assert.GreaterOrEqual(t, counts["t1"], 2)
	assert.GreaterOrEqual(t, counts["t2"], 3)
	assert.Equal(t, 5, counts["t1"]+counts["t2"])
}

func TestAssignmentSolver_NoVehicles(t *testing.T) {
	s := NewAssignmentSolver()

	result := s.Solve(context.Background(), nil, 3)

	assert.Len(t, result.Unassigned, 3)
}

func TestAssignmentSolver_InsufficientCapacity(t *testing.T) {
	s := NewAssignmentSolver()

	vehicles := []Vehicle{{ID: "t1", Capacity: 1, StartCost: []int{1, 1, 1}}}

	result := s.Solve(context.Background(), vehicles, 3)

	assert.Len(t, result.Unassigned, 2)
}
