package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssign_Empty(t *testing.T) {
	assert.Nil(t, assign(nil))
	assert.Equal(t, []int{-1, -1}, assign([][]float64{{}, {}}))
}

func TestAssign_SquareOptimal(t *testing.T) {
	// Greedy row-by-row would pick 1 + 6 + 8 = 15; optimal is 1 + 4 + 5.
	cost := [][]float64{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	}
	result := assign(cost)

	var total float64
	for i, j := range result {
		if !assert.GreaterOrEqual(t, j, 0, "row %d unassigned", i) {
			continue
		}
		total += cost[i][j]
	}
	assert.Equal(t, 10.0, total)
}

func TestAssign_CompetingDetections(t *testing.T) {
	// Both detections are nearest to track 0; the global optimum gives
	// track 0 to detection 1.
	cost := [][]float64{
		{2, 3},
		{1, 9},
	}
	assert.Equal(t, []int{1, 0}, assign(cost))
}

func TestAssign_Forbidden(t *testing.T) {
	cost := [][]float64{
		{1, 2},
		{forbiddenCost, forbiddenCost},
	}
	result := assign(cost)
	assert.Equal(t, -1, result[1])
	assert.GreaterOrEqual(t, result[0], 0)
}

func TestAssign_Rectangular(t *testing.T) {
	t.Run("more rows", func(t *testing.T) {
		result := assign([][]float64{{5}, {1}, {3}})
		assert.Equal(t, []int{-1, 0, -1}, result)
	})
	t.Run("more columns", func(t *testing.T) {
		result := assign([][]float64{{5, 1, 3}})
		assert.Equal(t, []int{1}, result)
	})
}
