// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnergy_Conversions(t *testing.T) {
	tests := []struct {
		name   string
		energy Energy
		joules float64
		milli  float64
		str    string
	}{
		{"Zero", 0, 0, 0, "0.000J"},
		{"One Joule", 1_000_000, 1, 1000, "1.000J"},
		{"1.5 Joule", 1_500_000, 1.5, 1500, "1.500J"},
		{"Sub milli", 250, 0.00025, 0.25, "0.000J"},
		{"Maximum", math.MaxUint64, float64(math.MaxUint64) / 1_000_000, float64(math.MaxUint64) / 1_000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.joules, tt.energy.Joules())
			assert.Equal(t, tt.milli, tt.energy.MilliJoules())
			assert.Equal(t, uint64(tt.energy), tt.energy.MicroJoules())
			if tt.str != "" {
				assert.Equal(t, tt.str, tt.energy.String())
			}
		})
	}
}

func TestEnergy_Over(t *testing.T) {
	assert.Equal(t, 3*Watt, (3 * Joule).Over(time.Second))
	assert.Equal(t, 500*MilliWatt, (Joule).Over(2*time.Second))
	assert.Equal(t, Power(0), (Joule).Over(0))
	assert.Equal(t, "1.50W", (3 * Joule).Over(2*time.Second).String())
}
