package provider

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		want   int
		wantOK bool
	}{
		{"nil", nil, 0, false},
		{"int", 42, 42, true},
		{"float", float64(1011), 1011, true},
		{"nan", math.NaN(), 0, false},
		{"plain string", "567", 567, true},
		{"thousands separator", "12,181", 12181, true},
		{"distance with unit", "1,890 mi", 1890, true},
		{"decimal distance", "13.5 km", 13, true},
		{"empty", "  ", 0, false},
		{"garbage", "n/a", 0, false},
		{"unsupported type", []int{1}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCount(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountOrZero(t *testing.T) {
	assert.Equal(t, 0, CountOrZero("n/a"))
	assert.Equal(t, 3818, CountOrZero("3,818"))
}
