// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowercapZones(t *testing.T) {
	lister, err := NewPowercapZones(validSysFSPath)
	require.NoError(t, err)

	zones, err := lister.Zones()
	require.NoError(t, err)
	require.Len(t, zones, 3)

	total := Energy(0)
	for _, z := range zones {
		assert.NotEmpty(t, z.Name())
		assert.Contains(t, z.Path(), "intel-rapl:")
		assert.Equal(t, Energy(262143328850), z.MaxEnergy())
		e, err := z.Energy()
		require.NoError(t, err)
		total += e
	}
	assert.Equal(t, Energy(123456+23456+654321), total)
}

func TestPowercapZones_Unavailable(t *testing.T) {
	lister, err := NewPowercapZones(t.TempDir())
	require.NoError(t, err)

	_, err = lister.Zones()
	assert.ErrorIs(t, err, ErrDomainsUnavailable)
}
