package playback

import (
	"context"
	"sync"

	"github.com/desertthunder/playsync/internal/models"
)

// DeviceLister is the slice of the remote API the registry needs.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
}

// Registry is the known device list plus the embedded session's own device id.
//
// Every write replaces the whole list; when refreshes overlap the last one to complete wins.
type Registry struct {
	mu       sync.RWMutex
	devices  []models.Device
	local    string
	api      DeviceLister
	notifier *Notifier
}

// NewRegistry creates an empty registry refreshed through api. A nil notifier gets a private one.
func NewRegistry(api DeviceLister, notifier *Notifier) *Registry {
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Registry{api: api, notifier: notifier, devices: []models.Device{}}
}

// Replace swaps in a new device list.
func (r *Registry) Replace(devices []models.Device) {
	next := make([]models.Device, len(devices))
	copy(next, devices)

	r.mu.Lock()
	r.devices = next
	r.mu.Unlock()
	r.notifier.Notify()
}

// Devices returns a copy of the current list.
func (r *Registry) Devices() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Active returns the device the remote side reports as receiving output.
func (r *Registry) Active() (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.IsActive {
			return d, true
		}
	}
	return models.Device{}, false
}

func (r *Registry) Find(id string) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.ID == id {
			return d, true
		}
	}
	return models.Device{}, false
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Find(id)
	return ok
}

// SetLocal records the embedded session's device id; empty clears it.
func (r *Registry) SetLocal(id string) {
	r.mu.Lock()
	r.local = id
	r.mu.Unlock()
	r.notifier.Notify()
}

func (r *Registry) Local() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local
}

// Refresh fetches the device list and replaces the registry with it. A failed fetch leaves the registry untouched.
func (r *Registry) Refresh(ctx context.Context) ([]models.Device, error) {
	devices, err := r.api.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	r.Replace(devices)
	return r.Devices(), nil
}
