package registry

import (
	"context"
	"sync"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
)

// DeviceObserver defines the interface for components interested in device updates.
type DeviceObserver interface {
	OnDeviceAdded(ctx context.Context, record domain.DeviceRecord)
	OnDeviceUpdated(ctx context.Context, record domain.DeviceRecord)
}

// RegistrySubject manages observers and notifies them of events.
type RegistrySubject struct {
	observers []DeviceObserver
	mu        sync.RWMutex
}

// NewRegistrySubject creates a new subject.
func NewRegistrySubject() *RegistrySubject {
	return &RegistrySubject{
		observers: make([]DeviceObserver, 0),
	}
}

// AddObserver registers a new observer.
func (s *RegistrySubject) AddObserver(observer DeviceObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// NotifyAdded notifies all observers of a newly created record. Observers
// run on their own goroutines so a slow consumer never blocks the listener.
func (s *RegistrySubject) NotifyAdded(ctx context.Context, record domain.DeviceRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.observers {
		go obs.OnDeviceAdded(ctx, record)
	}
}

// NotifyUpdated notifies all observers of a record update.
func (s *RegistrySubject) NotifyUpdated(ctx context.Context, record domain.DeviceRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.observers {
		go obs.OnDeviceUpdated(ctx, record)
	}
}
