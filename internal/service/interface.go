package service

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

var (
	// ErrUnknownCamera is returned when a camera id is not in the device list.
	ErrUnknownCamera = errors.New("unknown camera")
	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("scan controller closed")
)

// ScanController owns the station's camera, decode session and torch.
type ScanController interface {
	// Start enumerates cameras and starts a session on the first one.
	// Enumeration failures degrade to an empty device list.
	Start(ctx context.Context) error

	// SelectCamera tears down the current session and starts one on
	// cameraID. Selecting the running camera again is a no-op.
	SelectCamera(ctx context.Context, cameraID string) error

	// ToggleTorch inverts the torch on the running session.
	ToggleTorch(ctx context.Context) domain.TorchResult

	// Snapshot returns the current state.
	Snapshot() domain.ScannerState

	// Cameras returns the enumerated devices.
	Cameras() []domain.CameraDevice

	// Close tears down the session. Teardown failures are reported, never
	// returned.
	Close(ctx context.Context) domain.BestEffort
}

// Observer is told about every state change and every decoded code.
type Observer interface {
	OnState(state domain.ScannerState)
	OnScan(result domain.ScanResult)
}

// StateStore holds the current ScannerState of a station.
// Implementations:
// - MemoryStateStore: single station, in-process readers
// - RedisStateStore: lets an external dashboard read the live state
type StateStore interface {
	// Save stores or replaces the state of state.StationID.
	Save(ctx context.Context, state domain.ScannerState) error

	// Get returns the stored state, or nil if there is none.
	Get(ctx context.Context, stationID string) (*domain.ScannerState, error)

	// Delete removes the stored state.
	Delete(ctx context.Context, stationID string) error
}

// Observers fans state and scan notifications out to several observers.
type Observers []Observer

func (o Observers) OnState(state domain.ScannerState) {
	for _, obs := range o {
		obs.OnState(state)
	}
}

func (o Observers) OnScan(result domain.ScanResult) {
	for _, obs := range o {
		obs.OnScan(result)
	}
}
