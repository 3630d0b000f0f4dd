package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/lankill/internal/adapters/sniffer"
	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/services/audit"
	"github.com/lcalzada-xor/lankill/internal/core/services/registry"
)

// memAuditRepo keeps entries in memory for assertions.
type memAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *memAuditRepo) SaveAuditEntry(entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) ListAuditEntries(limit int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEntry, len(r.entries))
	copy(out, r.entries)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var actions []string
	for _, e := range r.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func newTestService(t *testing.T) (*Service, *registry.DeviceRegistry, *memAuditRepo) {
	t.Helper()
	reg := registry.NewDeviceRegistry()
	repo := &memAuditRepo{}
	scanner := sniffer.NewMockScanner(reg)
	require.NoError(t, scanner.Scan(context.Background()))
	return NewService(scanner, reg, audit.NewService(repo)), reg, repo
}

func TestDevices_SortedByIP(t *testing.T) {
	svc, _, _ := newTestService(t)

	devices := svc.Devices(context.Background())
	require.NotEmpty(t, devices)
	for i := 1; i < len(devices); i++ {
		assert.True(t, ipLess(devices[i-1].IP, devices[i].IP) || devices[i-1].IP == devices[i].IP,
			"%s should not come after %s", devices[i-1].IP, devices[i].IP)
	}
	// Numeric, not lexicographic: .5 before .23 before .42.
	assert.Equal(t, "192.168.1.1", devices[0].IP)
}

func TestKillAndRestore_AuditedOnce(t *testing.T) {
	svc, _, repo := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Kill(ctx, "b8:27:eb:12:34:56")
	require.NoError(t, err)
	assert.True(t, rec.Killed)
	assert.Equal(t, domain.StatusBlocked, rec.Status)

	// Repeating the kill changes nothing and audits nothing.
	_, err = svc.Kill(ctx, "b8:27:eb:12:34:56")
	require.NoError(t, err)

	rec, err = svc.Restore(ctx, "b8:27:eb:12:34:56")
	require.NoError(t, err)
	assert.False(t, rec.Killed)

	assert.Equal(t, []string{domain.AuditKill, domain.AuditRestore}, repo.actions())
}

func TestKill_UnknownDevice(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Kill(context.Background(), "00:00:00:00:00:99")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestKill_GatewayIsProtected(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()

	// The mock gateway is a discovered device; killing it must be refused.
	_, err := svc.Kill(ctx, "aa:bb:cc:dd:ee:01")
	require.Error(t, err)
	rec, _ := reg.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	assert.False(t, rec.Killed)
}

func TestKillAll_SkipsGateway(t *testing.T) {
	svc, reg, repo := newTestService(t)
	ctx := context.Background()

	count := svc.KillAll(ctx)

	// Everything except the gateway.
	assert.Equal(t, len(reg.GetAllDevices(ctx))-1, count)
	gw, _ := reg.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	assert.False(t, gw.Killed)
	assert.Contains(t, repo.actions(), domain.AuditKillAll)

	released := svc.RestoreAll(ctx)
	assert.Equal(t, count, released)
	for _, rec := range reg.GetAllDevices(ctx) {
		assert.False(t, rec.Killed)
	}
}

func TestKillSelected(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSelected(ctx, "b8:27:eb:12:34:56", true)
	require.NoError(t, err)
	_, err = svc.SetSelected(ctx, "3c:22:fb:aa:bb:cc", true)
	require.NoError(t, err)

	assert.Equal(t, 2, svc.KillSelected(ctx))
	rec, _ := reg.GetDevice(ctx, "b8:27:eb:12:34:56")
	assert.True(t, rec.Killed)
	other, _ := reg.GetDevice(ctx, "52:54:00:de:ad:01")
	assert.False(t, other.Killed, "unselected devices are untouched")

	assert.Equal(t, 2, svc.RestoreSelected(ctx))
	rec, _ = reg.GetDevice(ctx, "b8:27:eb:12:34:56")
	assert.False(t, rec.Killed)
}

func TestNetworkInfo_LiveActiveCount(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()

	info := svc.NetworkInfo(ctx)
	assert.Equal(t, "192.168.1.0/24", info.NetworkRange)
	assert.Equal(t, "192.168.1.1", info.Gateway)
	assert.Equal(t, len(reg.GetAllDevices(ctx)), info.ActiveDevices)
}

func TestEmitWarning_NeverBlocks(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Flood well past the buffer; extras are dropped, not deadlocked.
	for i := 0; i < 100; i++ {
		svc.EmitWarning(domain.Warning{Type: domain.WarnProxyARP, Message: "x"})
	}

	w := <-svc.Warnings()
	assert.Equal(t, domain.WarnProxyARP, w.Type)
	assert.False(t, w.Timestamp.IsZero())
}

func TestLivenessLoop_DemotesSilentDevices(t *testing.T) {
	reg := registry.NewDeviceRegistry()
	repo := &memAuditRepo{}
	scanner := sniffer.NewMockScanner(reg)
	svc := NewService(scanner, reg, audit.NewService(repo))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, scanner.Scan(ctx))

	go svc.StartLivenessLoop(ctx, 10*time.Millisecond, 1*time.Nanosecond)

	assert.Eventually(t, func() bool {
		for _, rec := range reg.GetAllDevices(ctx) {
			if rec.Status != domain.StatusInactive {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestIPLess(t *testing.T) {
	assert.True(t, ipLess("192.168.1.5", "192.168.1.23"))
	assert.False(t, ipLess("192.168.1.23", "192.168.1.5"))
	assert.True(t, ipLess("10.0.0.1", "192.168.1.1"))
	// Unparseable falls back to string order.
	assert.True(t, ipLess("", "192.168.1.1"))
}
