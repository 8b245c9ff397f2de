package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/audio"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/device"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/scanner"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/torch"
	pkglog "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
)

// ControllerDeps are the collaborators of a scan controller. Relay and
// Observer may be nil.
type ControllerDeps struct {
	StationID   string
	Enumerator  device.Enumerator
	Scanners    scanner.Factory
	Cue         audio.Cue
	Store       StateStore
	Relay       *Relay
	Observer    Observer
	StopTimeout time.Duration
	// Logger defaults to the global logger, which already carries the
	// station id.
	Logger      *zerolog.Logger
}

type scanController struct {
	deps ControllerDeps
	ctx  context.Context // carries the station logger into decode callbacks

	// opMu serializes lifecycle operations: start, select, toggle, close.
	opMu sync.Mutex

	// mu guards state, active and closed. It is never held while calling
	// into the scanner, whose decode callback takes it.
	mu     sync.RWMutex
	state  domain.ScannerState
	active scanner.Scanner
	closed bool

	// pubMu orders persisted and pushed snapshots the same way the state
	// changed.
	pubMu sync.Mutex
}

// NewScanController creates a ScanController in the Idle state.
func NewScanController(deps ControllerDeps) ScanController {
	if deps.Cue == nil {
		deps.Cue = audio.Nop{}
	}
	if deps.Store == nil {
		deps.Store = NewMemoryStateStore()
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = 3 * time.Second
	}

	logger := pkglog.L()
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	return &scanController{
		deps: deps,
		ctx:  pkglog.WithLogger(context.Background(), logger),
		state: domain.ScannerState{
			StationID: deps.StationID,
			Cameras:   []domain.CameraDevice{},
			State:     domain.SessionIdle,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func (c *scanController) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	l := pkglog.Ctx(c.ctx)

	if c.isClosed() {
		return ErrClosed
	}

	cameras, err := c.deps.Enumerator.Cameras(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("camera enumeration failed, continuing without cameras")
		cameras = nil
	}
	if cameras == nil {
		cameras = []domain.CameraDevice{}
	}

	c.mutate(func(s *domain.ScannerState) bool {
		s.Cameras = cameras
		return true
	}, nil)
	c.deps.Relay.StationOnline(c.ctx, len(cameras))

	if len(cameras) == 0 {
		l.Info().Msg("no cameras found")
		return nil
	}

	l.Info().Int("cameras", len(cameras)).Str(pkglog.FieldCameraID, cameras[0].ID).Msg("cameras enumerated")
	return c.startSession(ctx, cameras[0].ID)
}

func (c *scanController) SelectCamera(ctx context.Context, cameraID string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	c.mu.RLock()
	known := false
	for _, cam := range c.state.Cameras {
		if cam.ID == cameraID {
			known = true
			break
		}
	}
	current, state, active := c.state.SelectedCameraID, c.state.State, c.active
	c.mu.RUnlock()

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownCamera, cameraID)
	}
	// A session whose capture died is restarted rather than kept.
	if cameraID == current && state == domain.SessionRunning && active != nil && active.Alive() {
		return nil
	}

	c.teardown(ctx)
	return c.startSession(ctx, cameraID)
}

func (c *scanController) ToggleTorch(ctx context.Context) domain.TorchResult {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	l := pkglog.Ctx(c.ctx)

	c.mu.RLock()
	sc, on, state := c.active, c.state.TorchOn, c.state.State
	c.mu.RUnlock()

	if sc == nil || state != domain.SessionRunning {
		return domain.TorchResult{BestEffort: domain.NotApplied(domain.ReasonNoSession, nil), TorchOn: on}
	}
	if !sc.TrackCapabilities().Torch {
		return domain.TorchResult{BestEffort: domain.NotApplied(domain.ReasonUnsupported, nil), TorchOn: on}
	}

	want := !on
	if err := sc.ApplyVideoConstraints(ctx, scanner.Constraints{Torch: &want}); err != nil {
		if errors.Is(err, torch.ErrUnsupported) {
			return domain.TorchResult{BestEffort: domain.NotApplied(domain.ReasonUnsupported, err), TorchOn: on}
		}
		l.Warn().Err(err).Bool("torch_on", want).Msg("failed to apply torch constraint")
		return domain.TorchResult{BestEffort: domain.NotApplied(domain.ReasonFailed, err), TorchOn: on}
	}

	c.mutate(func(s *domain.ScannerState) bool {
		s.TorchOn = want
		return true
	}, nil)
	l.Info().Bool("torch_on", want).Msg("torch toggled")

	return domain.TorchResult{BestEffort: domain.Applied(), TorchOn: want}
}

func (c *scanController) Snapshot() domain.ScannerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

func (c *scanController) Cameras() []domain.CameraDevice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.CameraDevice{}, c.state.Cameras...)
}

func (c *scanController) Close(ctx context.Context) domain.BestEffort {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.isClosed() {
		return domain.Applied()
	}

	result := c.teardown(ctx)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	l := pkglog.Ctx(c.ctx)
	if err := c.deps.Store.Delete(ctx, c.deps.StationID); err != nil {
		l.Warn().Err(err).Msg("failed to delete station state")
	}
	if err := c.deps.Cue.Close(); err != nil {
		l.Warn().Err(err).Msg("failed to stop audio cue")
	}
	c.deps.Relay.StationClosed(c.ctx)

	return result
}

// startSession runs Idle -> Starting -> Running on cameraID. A failed start
// falls back to Idle and is not retried.
func (c *scanController) startSession(ctx context.Context, cameraID string) error {
	token := uuid.New().String()
	sctx := pkglog.WithSession(c.ctx, cameraID, token)
	l := pkglog.Ctx(sctx)

	ok := c.mutate(func(s *domain.ScannerState) bool {
		if !c.transition(s, domain.SessionStarting) {
			return false
		}
		s.SelectedCameraID = cameraID
		s.SessionID = token
		s.TorchOn = false
		return true
	}, nil)
	if !ok {
		return fmt.Errorf("cannot start session from state %s", c.Snapshot().State)
	}

	sc := c.deps.Scanners()
	err := sc.Start(pkglog.WithLogger(ctx, l), cameraID, func(text string) {
		c.onDecoded(sctx, token, cameraID, text)
	})
	if err != nil {
		sc.Clear()
		c.mutate(func(s *domain.ScannerState) bool {
			s.SessionID = ""
			return c.transition(s, domain.SessionIdle)
		}, nil)
		l.Warn().Err(err).Msg("failed to start decode session")
		return fmt.Errorf("failed to start session on %s: %w", cameraID, err)
	}

	c.mutate(func(s *domain.ScannerState) bool {
		c.active = sc
		return c.transition(s, domain.SessionRunning)
	}, nil)

	l.Info().Msg("decode session running")
	return nil
}

// teardown runs Running -> Stopping -> Idle and waits for the scanner to
// release the camera. Failures are logged and reported, never returned.
func (c *scanController) teardown(ctx context.Context) domain.BestEffort {
	c.mu.RLock()
	sc, token, cameraID := c.active, c.state.SessionID, c.state.SelectedCameraID
	c.mu.RUnlock()

	if sc == nil {
		return domain.Applied()
	}

	l := pkglog.Ctx(pkglog.WithSession(c.ctx, cameraID, token))

	c.mutate(func(s *domain.ScannerState) bool {
		return c.transition(s, domain.SessionStopping)
	}, nil)

	stopCtx, cancel := context.WithTimeout(ctx, c.deps.StopTimeout)
	defer cancel()
	err := sc.Stop(stopCtx)
	sc.Clear()

	c.mutate(func(s *domain.ScannerState) bool {
		c.active = nil
		s.SessionID = ""
		s.TorchOn = false
		return c.transition(s, domain.SessionIdle)
	}, nil)

	if err != nil {
		l.Warn().Err(err).Msg("decode session did not stop cleanly")
		return domain.NotApplied(domain.ReasonFailed, err)
	}
	l.Info().Msg("decode session stopped")
	return domain.Applied()
}

// onDecoded handles one decoded-text event. Events from a session that is
// no longer the running one are dropped.
func (c *scanController) onDecoded(ctx context.Context, token, cameraID, text string) {
	l := pkglog.Ctx(ctx)

	var result domain.ScanResult
	ok := c.mutate(func(s *domain.ScannerState) bool {
		if c.closed || s.SessionID != token || s.State != domain.SessionRunning {
			return false
		}
		result = domain.ScanResult{
			ID:        ulid.Make().String(),
			Text:      text,
			CameraID:  cameraID,
			SessionID: token,
			ScannedAt: time.Now().UTC(),
		}
		last := result
		s.LastResult = &last
		s.ScanCount++
		return true
	}, func() {
		if c.deps.Observer != nil {
			c.deps.Observer.OnScan(result)
		}
	})
	if !ok {
		l.Debug().Msg("dropped decode from stale session")
		return
	}

	l.Info().Str(pkglog.FieldScanID, result.ID).Msg("code scanned")

	if err := c.deps.Cue.Play(ctx); err != nil {
		l.Warn().Err(err).Msg("failed to play audio cue")
	}
	c.deps.Relay.ScanDecoded(ctx, result)
}

// transition moves s to next if the state machine allows it.
func (c *scanController) transition(s *domain.ScannerState, next domain.SessionState) bool {
	if !s.State.CanTransitionTo(next) {
		l := pkglog.Ctx(c.ctx)
		l.Error().
			Str(pkglog.FieldState, s.State.String()).
			Str("next", next.String()).
			Msg("illegal session transition")
		return false
	}
	s.State = next
	return true
}

// mutate applies fn under the state lock. When fn reports a change the new
// snapshot is persisted and pushed to the observer, after extra (if any)
// has run. Snapshots leave in the order the state changed.
func (c *scanController) mutate(fn func(s *domain.ScannerState) bool, extra func()) bool {
	c.mu.Lock()
	if !fn(&c.state) {
		c.mu.Unlock()
		return false
	}
	c.state.UpdatedAt = time.Now().UTC()
	snap := c.state.Clone()

	c.pubMu.Lock()
	c.mu.Unlock()
	defer c.pubMu.Unlock()

	saveCtx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	if err := c.deps.Store.Save(saveCtx, snap); err != nil {
		l := pkglog.Ctx(c.ctx)
		l.Warn().Err(err).Msg("failed to save station state")
	}

	if extra != nil {
		extra()
	}
	if c.deps.Observer != nil {
		c.deps.Observer.OnState(snap)
	}
	return true
}

func (c *scanController) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
