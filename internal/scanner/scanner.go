package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/capture"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/decoder"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/torch"
	pkglog "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
)

var (
	ErrNotRunning     = errors.New("scanner not running")
	ErrAlreadyRunning = errors.New("scanner already running")
)

// DecodedFunc receives the text of every successful decode.
type DecodedFunc func(text string)

// Capabilities describes what the running video track supports.
type Capabilities struct {
	Torch bool `json:"torch"`
}

// Constraints are applied to the running video track. Nil fields are
// left untouched.
type Constraints struct {
	Torch *bool
}

// Scanner binds a camera to a decode loop.
type Scanner interface {
	// Start opens deviceID and begins decoding. It returns once the camera
	// delivered its first frame.
	Start(ctx context.Context, deviceID string, onDecoded DecodedFunc) error
	// Stop ends the decode loop and releases the camera.
	Stop(ctx context.Context) error
	// Clear drops everything retained from the last session. It must be
	// called after Stop.
	Clear()
	// Alive reports whether the decode loop is still consuming frames.
	Alive() bool
	TrackCapabilities() Capabilities
	ApplyVideoConstraints(ctx context.Context, c Constraints) error
}

// Factory creates a fresh Scanner for each decode session.
type Factory func() Scanner

// Options configures a Camera.
type Options struct {
	Capture capture.Options
	Decoder decoder.Decoder
	Torch   torch.Torch
	// OnFrame, when set, sees every frame before it is decoded.
	OnFrame func(frame []byte)
}

// Camera is a Scanner backed by an ffmpeg capture process.
type Camera struct {
	opts Options

	mu       sync.Mutex
	source   *capture.Source
	loopDone chan struct{}
	torchOn  bool
}

// New creates a Camera.
func New(opts Options) *Camera {
	return &Camera{opts: opts}
}

// NewFactory returns a Factory producing Cameras with the same options.
func NewFactory(opts Options) Factory {
	return func() Scanner { return New(opts) }
}

func (c *Camera) Start(ctx context.Context, deviceID string, onDecoded DecodedFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		return ErrAlreadyRunning
	}

	src, err := capture.Open(ctx, deviceID, c.opts.Capture)
	if err != nil {
		return fmt.Errorf("failed to open camera %s: %w", deviceID, err)
	}

	c.source = src
	c.loopDone = make(chan struct{})
	go c.decodeLoop(pkglog.Ctx(ctx), src, onDecoded, c.loopDone)

	return nil
}

// decodeLoop logs through l, the logger of the context Start was called
// with.
func (c *Camera) decodeLoop(l zerolog.Logger, src *capture.Source, onDecoded DecodedFunc, done chan struct{}) {
	defer close(done)

	for frame := range src.Frames() {
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(frame)
		}
		if c.opts.Decoder == nil {
			continue
		}

		text, err := c.opts.Decoder.DecodeJPEG(frame)
		if err != nil {
			if errors.Is(err, decoder.ErrNoCode) {
				l.Trace().Msg("no code in frame")
			} else {
				l.Debug().Err(err).Msg("frame decode failed")
			}
			continue
		}
		if onDecoded != nil {
			onDecoded(text)
		}
	}

	if err := src.Err(); err != nil {
		l.Warn().Err(err).Msg("capture ended unexpectedly")
	}
}

func (c *Camera) Stop(ctx context.Context) error {
	c.mu.Lock()
	src, done := c.source, c.loopDone
	torchOn := c.torchOn
	c.mu.Unlock()

	if src == nil {
		return ErrNotRunning
	}

	var errs []error
	if torchOn && c.opts.Torch != nil {
		if err := c.opts.Torch.Set(false); err != nil {
			errs = append(errs, fmt.Errorf("failed to switch torch off: %w", err))
		}
	}
	if err := src.Close(); err != nil {
		errs = append(errs, err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("decode loop still running: %w", ctx.Err()))
	}

	c.mu.Lock()
	c.source = nil
	c.torchOn = false
	c.mu.Unlock()

	return errors.Join(errs...)
}

func (c *Camera) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source != nil {
		return
	}
	c.loopDone = nil
}

func (c *Camera) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil || c.loopDone == nil {
		return false
	}
	select {
	case <-c.loopDone:
		return false
	default:
		return true
	}
}

func (c *Camera) TrackCapabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return Capabilities{}
	}
	return Capabilities{Torch: c.opts.Torch != nil && c.opts.Torch.Supported()}
}

func (c *Camera) ApplyVideoConstraints(ctx context.Context, cons Constraints) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil {
		return ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if cons.Torch != nil {
		if c.opts.Torch == nil || !c.opts.Torch.Supported() {
			return torch.ErrUnsupported
		}
		if err := c.opts.Torch.Set(*cons.Torch); err != nil {
			return fmt.Errorf("failed to apply torch constraint: %w", err)
		}
		c.torchOn = *cons.Torch
	}
	return nil
}

var _ Scanner = (*Camera)(nil)
