package registry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
)

var (
	testMAC = mustMAC("AA:BB:CC:DD:EE:FF")
	testIP  = net.IPv4(192, 168, 1, 42)
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

type countingObserver struct {
	added   atomic.Int64
	updated atomic.Int64
}

func (o *countingObserver) OnDeviceAdded(ctx context.Context, rec domain.DeviceRecord) {
	o.added.Add(1)
}

func (o *countingObserver) OnDeviceUpdated(ctx context.Context, rec domain.DeviceRecord) {
	o.updated.Add(1)
}

func TestUpsertObserved_NewDevice(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()
	now := time.Now()

	rec, created := r.UpsertObserved(ctx, testMAC, testIP, now)

	assert.True(t, created)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", rec.MAC, "key must be canonical lower-case")
	assert.Equal(t, testIP.String(), rec.IP)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Equal(t, domain.Unknown, rec.Hostname)
	assert.Equal(t, domain.Unknown, rec.Vendor)
	assert.Equal(t, now, rec.FirstSeen)
	assert.Equal(t, now, rec.LastSeen)
	assert.False(t, rec.Selected)
	assert.False(t, rec.Killed)
}

func TestUpsertObserved_CreatedExactlyOnce(t *testing.T) {
	r := NewDeviceRegistry()
	obs := &countingObserver{}
	r.AddObserver(obs)
	ctx := context.Background()

	_, created := r.UpsertObserved(ctx, testMAC, testIP, time.Now())
	assert.True(t, created)
	_, created = r.UpsertObserved(ctx, testMAC, testIP, time.Now())
	assert.False(t, created)
	_, created = r.UpsertObserved(ctx, mustMAC("aa:bb:cc:dd:ee:ff"), testIP, time.Now())
	assert.False(t, created, "case variants are the same identity")

	assert.Eventually(t, func() bool {
		return obs.added.Load() == 1
	}, time.Second, 10*time.Millisecond, "exactly one added notification")
}

func TestUpsertObserved_IPMoveKeepsIdentity(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()

	r.UpsertObserved(ctx, testMAC, testIP, time.Now())
	newIP := net.IPv4(192, 168, 1, 99)
	rec, created := r.UpsertObserved(ctx, testMAC, newIP, time.Now())

	assert.False(t, created)
	assert.Equal(t, newIP.String(), rec.IP)

	_, found := r.FindByIP(ctx, testIP.String())
	assert.False(t, found, "old IP no longer maps to the device")
	got, found := r.FindByIP(ctx, newIP.String())
	require.True(t, found)
	assert.Equal(t, rec.MAC, got.MAC)
}

func TestUpsertObserved_MonotonicLastSeen(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()
	now := time.Now()

	r.UpsertObserved(ctx, testMAC, testIP, now)
	// A reordered frame with an older timestamp must not rewind LastSeen.
	rec, _ := r.UpsertObserved(ctx, testMAC, testIP, now.Add(-time.Minute))
	assert.Equal(t, now, rec.LastSeen)

	later := now.Add(time.Minute)
	rec, _ = r.UpsertObserved(ctx, testMAC, testIP, later)
	assert.Equal(t, later, rec.LastSeen)
}

func TestMarkStale_DemotesOnce(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()
	seen := time.Now().Add(-5 * time.Minute)

	r.UpsertObserved(ctx, testMAC, testIP, seen)

	demoted := r.MarkStale(ctx, time.Now(), time.Minute)
	assert.Equal(t, 1, demoted)
	rec, _ := r.GetDevice(ctx, testMAC.String())
	assert.Equal(t, domain.StatusInactive, rec.Status)

	// Second pass over the same silent device counts nothing.
	assert.Equal(t, 0, r.MarkStale(ctx, time.Now(), time.Minute))
}

func TestMarkStale_ResurrectOnReobservation(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()

	r.UpsertObserved(ctx, testMAC, testIP, time.Now().Add(-5*time.Minute))
	r.MarkStale(ctx, time.Now(), time.Minute)

	rec, _ := r.UpsertObserved(ctx, testMAC, testIP, time.Now())
	assert.Equal(t, domain.StatusActive, rec.Status)
}

func TestKilledDeviceStaysBlocked(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()

	r.UpsertObserved(ctx, testMAC, testIP, time.Now().Add(-5*time.Minute))
	rec, changed := r.SetKilled(ctx, testMAC.String(), true)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusBlocked, rec.Status)

	// Silence does not demote a killed device, and it does not count.
	assert.Equal(t, 0, r.MarkStale(ctx, time.Now(), time.Minute))
	rec, _ = r.GetDevice(ctx, testMAC.String())
	assert.Equal(t, domain.StatusBlocked, rec.Status)

	// Neither does fresh traffic promote it back to Active.
	rec, _ = r.UpsertObserved(ctx, testMAC, testIP, time.Now())
	assert.Equal(t, domain.StatusBlocked, rec.Status)
	assert.True(t, rec.Killed)

	// Only the explicit restore does.
	rec, changed = r.SetKilled(ctx, testMAC.String(), false)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.False(t, rec.Killed)
}

func TestSetKilled_Idempotent(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()

	r.UpsertObserved(ctx, testMAC, testIP, time.Now())

	_, changed := r.SetKilled(ctx, testMAC.String(), true)
	assert.True(t, changed)
	_, changed = r.SetKilled(ctx, testMAC.String(), true)
	assert.False(t, changed)

	_, changed = r.SetKilled(ctx, "00:00:00:00:00:99", true)
	assert.False(t, changed, "unknown device is a no-op")
}

func TestSetSelected(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()

	r.UpsertObserved(ctx, testMAC, testIP, time.Now())
	rec, changed := r.SetSelected(ctx, "AA:BB:CC:DD:EE:FF", true)
	assert.True(t, changed)
	assert.True(t, rec.Selected)

	_, changed = r.SetSelected(ctx, testMAC.String(), true)
	assert.False(t, changed)
}

func TestUpdateIdentity_PartialFields(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()

	r.UpsertObserved(ctx, testMAC, testIP, time.Now())
	r.UpdateIdentity(ctx, testMAC.String(), "printer.lan", "")

	rec, _ := r.GetDevice(ctx, testMAC.String())
	assert.Equal(t, "printer.lan", rec.Hostname)
	assert.Equal(t, domain.Unknown, rec.Vendor, "empty vendor leaves the field alone")
}

func TestActiveCount(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 4; i++ {
		mac := mustMAC(fmt.Sprintf("02:00:00:00:00:%02x", i))
		r.UpsertObserved(ctx, mac, net.IPv4(10, 0, 0, byte(i+1)), now)
	}
	assert.Equal(t, 4, r.ActiveCount(ctx))

	r.SetKilled(ctx, "02:00:00:00:00:00", true)
	assert.Equal(t, 3, r.ActiveCount(ctx))
}

func TestRegistry_ConcurrentUpserts(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				mac := mustMAC(fmt.Sprintf("02:00:00:00:%02x:%02x", g, i%16))
				r.UpsertObserved(ctx, mac, net.IPv4(10, 0, byte(g), byte(i%16)), time.Now())
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, r.GetAllDevices(ctx), 8*16)
}
