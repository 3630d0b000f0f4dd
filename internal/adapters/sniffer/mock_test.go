package sniffer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/lankill/internal/core/services/registry"
)

func TestMockScanner_ScanSeedsRegistry(t *testing.T) {
	reg := registry.NewDeviceRegistry()
	m := NewMockScanner(reg)
	ctx := context.Background()

	require.NoError(t, m.Scan(ctx))

	devices := reg.GetAllDevices(ctx)
	assert.Len(t, devices, len(mockHosts))
	assert.Equal(t, len(mockHosts), m.NetworkInfo().ActiveDevices)

	gwIP, gwMAC := m.Gateway()
	assert.Equal(t, "192.168.1.1", gwIP.String())
	assert.Equal(t, mockHosts[0].mac, gwMAC.String())

	rec, found := reg.FindByIP(ctx, "192.168.1.23")
	require.True(t, found)
	assert.Equal(t, "b8:27:eb:12:34:56", rec.MAC)
}

func TestMockScanner_InterfaceIsValid(t *testing.T) {
	m := NewMockScanner(registry.NewDeviceRegistry())
	iface := m.Interface()
	assert.True(t, iface.Valid())
	assert.True(t, iface.Network.Contains(iface.IP))
}
