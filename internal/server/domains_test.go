// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/service"
)

const fixtureSysFS = "../device/testdata/sys"

type mockLister struct {
	mock.Mock
}

func (m *mockLister) Discover() ([]*device.Domain, error) {
	args := m.Called()
	domains, _ := args.Get(0).([]*device.Domain)
	return domains, args.Error(1)
}

func TestDomains_JSON(t *testing.T) {
	api := newFakeAPIServer()
	d := NewDomains(api, device.NewRegistry(fixtureSysFS), nil)
	assert.Equal(t, "domains", d.Name())
	require.NoError(t, d.Init())

	rec := api.do(t, http.MethodGet, "/domains", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []domainJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "package-0", got[0].Name)
	assert.Equal(t, 0, got[0].Index)
	assert.Contains(t, got[0].Path, "intel-rapl:0")
	require.Len(t, got[0].Components, 2)
	assert.Equal(t, "core", got[0].Components[0].Name)
	assert.Equal(t, "uncore", got[0].Components[1].Name)

	assert.Equal(t, "package-1", got[1].Name)
	require.Len(t, got[1].Components, 2)
	assert.Equal(t, "dram", got[1].Components[1].Name)
	assert.Empty(t, got[1].Components[1].Components)
}

func TestDomains_Text(t *testing.T) {
	api := newFakeAPIServer()
	require.NoError(t, NewDomains(api, device.NewRegistry(fixtureSysFS), nil).Init())

	rec := api.do(t, http.MethodGet, "/domains?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "[0] package-0\n"+
		"  [0] core\n"+
		"  [1] uncore\n"+
		"[1] package-1\n"+
		"  [0] core\n"+
		"  [1] dram\n", rec.Body.String())
}

func TestDomains_Unavailable(t *testing.T) {
	api := newFakeAPIServer()
	d := NewDomains(api, device.NewRegistry(t.TempDir()), nil)
	require.NoError(t, d.Init())

	rec := api.do(t, http.MethodGet, "/domains", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "RAPL energy domains unavailable")

	assert.False(t, d.IsReady())
	assert.True(t, d.IsLive())
}

func TestDomains_MethodNotAllowed(t *testing.T) {
	api := newFakeAPIServer()
	require.NoError(t, NewDomains(api, device.NewRegistry(fixtureSysFS), nil).Init())

	rec := api.do(t, http.MethodDelete, "/domains", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDomains_IsReady(t *testing.T) {
	tt := []struct {
		name    string
		domains []*device.Domain
		err     error
		ready   bool
	}{
		{"discovered", []*device.Domain{{Name: "package-0"}}, nil, true},
		{"nothing discovered", []*device.Domain{}, nil, false},
		{"discovery error", nil, device.ErrDomainsUnavailable, false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			lister := &mockLister{}
			lister.On("Discover").Return(tc.domains, tc.err).Once()

			d := NewDomains(newFakeAPIServer(), lister, nil)
			assert.Equal(t, tc.ready, d.IsReady())
			lister.AssertExpectations(t)
		})
	}
}

func TestDomains_ReadinessThroughProbe(t *testing.T) {
	api := newFakeAPIServer()
	d := NewDomains(api, device.NewRegistry(fixtureSysFS), nil)
	p := NewProbe(api, []service.Service{d}, nil)
	require.NoError(t, d.Init())
	require.NoError(t, p.Init())

	rec := api.do(t, http.MethodGet, "/probe/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"domains"`)
}
