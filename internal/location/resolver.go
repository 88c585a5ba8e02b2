// Package location decides where a report was captured. Photo metadata takes
// precedence over the device sensor for the duration of an upload cycle.
package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/civiceye/civiceye/internal/models"
)

// Status is the resolver state shown to the user.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLocating  Status = "locating"
	StatusFound     Status = "found"     // device fix
	StatusExtracted Status = "extracted" // photo metadata
	StatusError     Status = "error"
)

// ErrRetryNotAllowed is returned by Retry while a location is known or being requested.
var ErrRetryNotAllowed = errors.New("location retry only allowed from idle or error")

// Snapshot is a copy of the resolver state.
type Snapshot struct {
	Status   Status               `json:"status"`
	Location *models.LocationData `json:"location,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Resolver holds the location of the current upload cycle.
type Resolver struct {
	locator DeviceLocator
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	status   Status
	location *models.LocationData
	lastErr  string
	// request is bumped whenever a device lookup is issued or invalidated so
	// that late results from an abandoned lookup are dropped.
	request uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewResolver creates a resolver in the idle state. A zero timeout waits
// for the locator indefinitely.
func NewResolver(locator DeviceLocator, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		locator: locator,
		timeout: timeout,
		logger:  logger,
		status:  StatusIdle,
	}
}

// Init starts the first device lookup. It is a no-op unless the resolver is idle.
func (r *Resolver) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusIdle {
		r.requestDeviceLocked()
	}
}

// ApplyImage starts a new upload cycle for data. GPS metadata in the image
// wins over any device fix, pending or found.
func (r *Resolver) ApplyImage(data []byte) Status {
	lat, lng, err := ExtractGPS(data)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		r.invalidateDeviceLocked()
		r.dropPendingFix()
		r.status = StatusExtracted
		r.location = &models.LocationData{
			Latitude:  lat,
			Longitude: lng,
			Accuracy:  models.Float64Ptr(models.ExifAccuracy),
		}
		r.lastErr = ""
		r.logger.Debug("location extracted from image", "latitude", lat, "longitude", lng)
		return r.status
	}

	r.logger.Debug("no usable GPS metadata in image", "error", err)

	switch r.status {
	case StatusFound, StatusLocating:
		// keep the device fix or the lookup in progress
	default:
		// idle, error, or a previous image's metadata
		r.location = nil
		r.requestDeviceLocked()
	}
	return r.status
}

// Retry re-requests the device position after a failure.
func (r *Resolver) Retry() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusError && r.status != StatusIdle {
		return ErrRetryNotAllowed
	}
	r.requestDeviceLocked()
	return nil
}

// Reset discards the cycle's location and requests a fresh device fix.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateDeviceLocked()
	r.dropPendingFix()
	r.status = StatusIdle
	r.location = nil
	r.lastErr = ""
	r.requestDeviceLocked()
}

// Enrich merges an address into the current location if its coordinates
// still equal at. It reports whether the merge happened. Coordinates are
// never altered.
func (r *Resolver) Enrich(at models.LocationData, address, mapsURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.location == nil || !r.location.SameCoordinates(at) {
		return false
	}
	if address != "" {
		r.location.Address = address
	}
	if mapsURL != "" {
		r.location.MapsURL = mapsURL
	}
	return true
}

// Snapshot returns a copy of the current state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Status:   r.status,
		Location: r.location.Clone(),
		Error:    r.lastErr,
	}
}

// Location returns a copy of the resolved location, or nil.
func (r *Resolver) Location() *models.LocationData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location.Clone()
}

// Close abandons any pending device lookup and waits for it to return.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.invalidateDeviceLocked()
	r.mu.Unlock()
	r.wg.Wait()
}

// Wait blocks until in-flight device lookups have returned.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) invalidateDeviceLocked() {
	r.request++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// dropPendingFix discards a fix the locator buffered for the previous cycle.
func (r *Resolver) dropPendingFix() {
	if d, ok := r.locator.(pendingDropper); ok {
		d.DropPending()
	}
}

func (r *Resolver) requestDeviceLocked() {
	r.invalidateDeviceLocked()
	id := r.request
	r.status = StatusLocating
	r.lastErr = ""

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		fix, err := r.locator.Locate(ctx)
		r.finishDevice(id, fix, err)
	}()
}

func (r *Resolver) finishDevice(id uint64, fix Fix, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != r.request || r.status != StatusLocating {
		return
	}
	r.cancel = nil

	if err != nil {
		r.status = StatusError
		r.lastErr = describeDeviceError(err)
		r.logger.Info("device location failed", "error", err)
		return
	}

	r.status = StatusFound
	r.location = &models.LocationData{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  models.Float64Ptr(fix.Accuracy),
	}
	r.logger.Debug("device location found", "latitude", fix.Latitude, "longitude", fix.Longitude, "accuracy", fix.Accuracy)
}

func describeDeviceError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "location request timed out"
	case errors.Is(err, ErrPermissionDenied):
		return ErrPermissionDenied.Error()
	default:
		return err.Error()
	}
}
