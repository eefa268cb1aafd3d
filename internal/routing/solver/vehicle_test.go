package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicleSolver_Order_Empty(t *testing.T) {
	s := NewVehicleSolver()

	order, cost, err := s.Order(nil, 0)

	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Zero(t, cost)
}

func TestVehicleSolver_Order_SingleCustomer(t *testing.T) {
	s := NewVehicleSolver()

	cost := [][]float64{
		{0, 5},
		{5, 0},
	}

	order, totalCost, err := s.Order(cost, 1)

	require.NoError(t, err)
	assert.Equal(t, []int{0}, order)
	assert.Equal(t, 5.0, totalCost)
}

func TestVehicleSolver_Order_VisitsEveryCustomerOnce(t *testing.T) {
	s := NewVehicleSolver()

	// Depot (0) + 4 customers laid out on a straight line: 0-1-2-3-4.
	// Distance matrix along the line, one unit between neighbours.
	cost := [][]float64{
		{0, 1, 2, 3, 4},
		{1, 0, 1, 2, 3},
		{2, 1, 0, 1, 2},
		{3, 2, 1, 0, 1},
		{4, 3, 2, 1, 0},
	}

	order, _, err := s.Order(cost, 4)

	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, order, "every customer index must appear exactly once")
}

func TestVehicleSolver_Order_RejectsMismatchedMatrix(t *testing.T) {
	s := NewVehicleSolver()

	_, _, err := s.Order([][]float64{{0, 1}, {1, 0}}, 3)

	require.Error(t, err)
}
