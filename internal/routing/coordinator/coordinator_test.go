package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logistics/internal/routing/domain"
	"logistics/internal/routing/matrix"
	"logistics/internal/routing/solver"
)

type fakeDataSource struct {
	techs     []domain.Tech
	customers map[domain.Day][]CustomerView
}

func (f *fakeDataSource) ActiveTechs(_ context.Context, _ string, selected []string) ([]domain.Tech, error) {
	if len(selected) == 0 {
		return f.techs, nil
	}
	set := toSet(selected)
	var out []domain.Tech
	for _, t := range f.techs {
		if set[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeDataSource) EligibleCustomers(_ context.Context, _ string, day domain.Day, _ time.Time, _, _ bool) ([]CustomerView, error) {
	return f.customers[day], nil
}

func newFixture() (*Coordinator, *fakeDataSource) {
	techs := []domain.Tech{
		{ID: "t1", Name: "Tech One", Start: domain.Point{Lat: 37.00, Lng: -121.00}, End: domain.Point{Lat: 37.00, Lng: -121.00}, MaxStopsPerDay: 10, EfficiencyMultiplier: 1.0, Active: true},
		{ID: "t2", Name: "Tech Two", Start: domain.Point{Lat: 37.10, Lng: -121.00}, End: domain.Point{Lat: 37.10, Lng: -121.00}, MaxStopsPerDay: 10, EfficiencyMultiplier: 1.5, Active: true},
	}

	monday := []CustomerView{
		{Customer: domain.Customer{ID: "c1", Location: domain.Point{Lat: 37.01, Lng: -121.01}, VisitDurationMin: 20, Difficulty: 1, PrimaryDay: domain.Monday, DaysPerWeek: 1, Active: true}},
		{Customer: domain.Customer{ID: "c2", Location: domain.Point{Lat: 37.02, Lng: -121.02}, VisitDurationMin: 20, Difficulty: 1, PrimaryDay: domain.Monday, DaysPerWeek: 1, Active: true}},
		{Customer: domain.Customer{ID: "c3", Location: domain.Point{Lat: 37.03, Lng: -121.03}, VisitDurationMin: 20, Difficulty: 1, PrimaryDay: domain.Monday, DaysPerWeek: 1, Active: true}},
		{Customer: domain.Customer{ID: "c4", Location: domain.Point{Lat: 37.04, Lng: -121.04}, VisitDurationMin: 20, Difficulty: 1, PrimaryDay: domain.Monday, DaysPerWeek: 1, Active: true}},
		{Customer: domain.Customer{ID: "c5", Location: domain.Point{Lat: 37.05, Lng: -121.05}, VisitDurationMin: 20, Difficulty: 1, PrimaryDay: domain.Monday, DaysPerWeek: 1, Active: true}},
	}

	for i := range monday {
		techID := "t1"
		monday[i].AssignedTechID = &techID
	}

	ds := &fakeDataSource{techs: techs, customers: map[domain.Day][]CustomerView{domain.Monday: monday}}

	fallback := matrix.NewHaversineProvider(30)
	vrp := solver.NewVRPSolver()
	pool := solver.NewPool(2)

	return New(ds, fallback, vrp, pool), ds
}

func TestCoordinator_FullPerDay_PartitionsCustomers(t *testing.T) {
	c, _ := newFixture()

	result, err := c.Optimize(context.Background(), "tenant-1", Request{
		Mode:       ModeFullPerDay,
		ServiceDay: domain.Monday,
		Speed:      solver.SpeedQuick,
		Today:      time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	require.NotEmpty(t, result.Routes)

	seen := map[string]bool{}
	for _, route := range result.Routes {
		for _, stop := range route.Stops {
			seen[stop.CustomerID] = true
		}
	}
	assert.Len(t, seen, 5, "every customer must appear in exactly one route")
}

func TestCoordinator_FullPerDay_BalancesByCapacity(t *testing.T) {
	// S1 from the spec: T2 (eff=1.5) must receive >= 3 of the 5 customers.
	c, _ := newFixture()

	result, err := c.Optimize(context.Background(), "tenant-1", Request{
		Mode:       ModeFullPerDay,
		ServiceDay: domain.Monday,
		Speed:      solver.SpeedQuick,
		Today:      time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)

	counts := map[string]int{}
	for _, route := range result.Routes {
		counts[route.TechID] = route.TotalCustomers
	}
	assert.GreaterOrEqual(t, counts["t2"], 3)
}

func TestCoordinator_Refine_NeverMovesCustomersBetweenTechs(t *testing.T) {
	c, _ := newFixture()

	result, err := c.Optimize(context.Background(), "tenant-1", Request{
		Mode:       ModeRefine,
		ServiceDay: domain.Monday,
		Speed:      solver.SpeedQuick,
		Today:      time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	require.Len(t, result.Routes, 1, "only t1 has assigned customers; refine must not move them to t2")
	assert.Equal(t, "t1", result.Routes[0].TechID)
	assert.Equal(t, 5, result.Routes[0].TotalCustomers)
}

func TestCoordinator_NoTechs_ReturnsMessage(t *testing.T) {
	ds := &fakeDataSource{customers: map[domain.Day][]CustomerView{}}
	fallback := matrix.NewHaversineProvider(30)
	c := New(ds, fallback, solver.NewVRPSolver(), solver.NewPool(2))

	result, err := c.Optimize(context.Background(), "tenant-1", Request{
		Mode:       ModeFullPerDay,
		ServiceDay: domain.Monday,
		Speed:      solver.SpeedQuick,
		Today:      time.Now(),
	})

	require.NoError(t, err)
	assert.Empty(t, result.Routes)
	assert.NotEmpty(t, result.Message)
}

func TestCombinations(t *testing.T) {
	days := []domain.Day{domain.Monday, domain.Tuesday, domain.Wednesday}

	combos := combinations(days, 2)

	assert.Len(t, combos, 3)
}

func TestWorkloadVariance_PrefersBalancedDistribution(t *testing.T) {
	workload := map[domain.Day]int{domain.Monday: 5, domain.Tuesday: 0}

	varianceMove := workloadVariance(workload, []domain.Day{domain.Monday}, []domain.Day{domain.Tuesday})
	varianceStay := workloadVariance(workload, []domain.Day{domain.Monday}, []domain.Day{domain.Monday})

	assert.Less(t, varianceMove, varianceStay)
}
