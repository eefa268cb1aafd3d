// Package flow computes a minimum-cost maximum flow over the depot/tech/
// customer bipartite network built by the assignment solver (spec §4.2
// "Multi-vehicle assignment"). It implements Successive Shortest Path with
// Johnson's potential technique, falling back to Capacity Scaling for
// graphs with large edge capacities.
//
// Adapted from the teacher repository's
// services/solver-svc/internal/algorithms package: trimmed to the
// min-cost-flow call path routing-core actually exercises, with the
// commonv1-proto-gated dispatch (Solve, SolverPool, BatchSolve,
// GetAlgorithmInfo) and the unused max-flow-only algorithms
// (Ford-Fulkerson, Edmonds-Karp, Dinic, Push-Relabel) dropped.
package flow

import (
	"time"

	"logistics/internal/routing/flow/graph"
)

// PathWithFlow records one augmenting path and the flow pushed along it.
// Only populated when SolverOptions.ReturnPaths is set.
type PathWithFlow struct {
	NodeIDs []int64
	Flow    float64
}

// SolverOptions configures a min-cost-flow computation.
type SolverOptions struct {
	// Epsilon is the tolerance for floating-point comparisons. Values
	// smaller than Epsilon are treated as zero.
	Epsilon float64

	// MaxIterations limits the number of augmenting-path iterations.
	// Zero or negative means unlimited.
	MaxIterations int

	// Timeout bounds how long the solve may run; zero relies solely on the
	// caller's context.
	Timeout time.Duration

	// ReturnPaths enables collecting every augmenting path found, at the
	// cost of memory proportional to the number of paths.
	ReturnPaths bool
}

// DefaultSolverOptions returns the defaults routing-core's assignment
// solver runs with: 1e-9 tolerance, unlimited iterations, a 30s timeout,
// and no path collection.
func DefaultSolverOptions() *SolverOptions {
	return &SolverOptions{
		Epsilon:       graph.Epsilon,
		MaxIterations: 0,
		Timeout:       30 * time.Second,
		ReturnPaths:   false,
	}
}

// WithTimeout sets the timeout and returns the options for chaining.
func (o *SolverOptions) WithTimeout(timeout time.Duration) *SolverOptions {
	o.Timeout = timeout
	return o
}

// WithReturnPaths enables or disables path collection and returns the
// options for chaining.
func (o *SolverOptions) WithReturnPaths(returnPaths bool) *SolverOptions {
	o.ReturnPaths = returnPaths
	return o
}

// WithMaxIterations sets the iteration limit and returns the options for
// chaining.
func (o *SolverOptions) WithMaxIterations(max int) *SolverOptions {
	o.MaxIterations = max
	return o
}
