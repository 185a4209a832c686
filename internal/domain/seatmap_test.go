package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/cinema-booking/internal/domain"
)

func TestBuildSeatMap(t *testing.T) {
	showtime := &domain.Showtime{
		ID:          7,
		ScreenName:  "Screen 2",
		TotalRows:   3,
		SeatsPerRow: 4,
	}

	m := domain.BuildSeatMap(showtime, []domain.Seat{
		{Row: 1, Number: 1},
		{Row: 3, Number: 4},
		{Row: 9, Number: 9}, // outside the grid, ignored
	})

	require.Len(t, m.Rows, 3)
	for _, row := range m.Rows {
		require.Len(t, row, 4)
	}
	assert.True(t, m.Rows[0][0])
	assert.True(t, m.Rows[2][3])
	assert.False(t, m.Rows[1][1])
	assert.Equal(t, int64(7), m.ShowtimeID)
	assert.Equal(t, "Screen 2", m.ScreenName)
}

func TestBuildSeatMapEmpty(t *testing.T) {
	showtime := &domain.Showtime{ID: 1, TotalRows: 2, SeatsPerRow: 2}
	m := domain.BuildSeatMap(showtime, nil)

	for _, row := range m.Rows {
		for _, taken := range row {
			assert.False(t, taken)
		}
	}
}
