package sensortag

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFixed(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{123.456, "123.46"},
		{0, "0.00"},
		{2, "2.00"},
		{-1.234, "-1.23"},
		{0.125, "0.12"},
		{0.375, "0.38"},
		{1.005, "1.00"},
		{1e21, "1000000000000000000000.00"},
		{1e-7, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFixed(tt.in, 2))
		})
	}
}

func TestFormatFixedRoundTrip(t *testing.T) {
	inputs := []float64{0, 1, -1, 0.005, 0.015, 2.675, 123.456, -98.7654, 1e9 + 0.555, math.Pi, -math.E}
	for _, in := range inputs {
		s := FormatFixed(in, 2)
		parts := strings.Split(s, ".")
		require.Len(t, parts, 2, s)
		assert.Len(t, parts[1], 2, s)

		v, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err)
		assert.Equal(t, s, FormatFixed(v, 2))
	}
}

func TestFormatFixedPrecision(t *testing.T) {
	assert.Equal(t, "3.142", FormatFixed(math.Pi, 3))
	assert.Equal(t, "3", FormatFixed(math.Pi, 0))
}
