package preview

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"sync"

	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

// Broadcaster holds the most recent camera frame and fans new frames out
// to preview viewers. Viewers only ever see the latest frame; slow ones
// skip frames instead of queueing them.
type Broadcaster struct {
	mu     sync.Mutex
	latest []byte
	subs   map[chan []byte]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan []byte]struct{})}
}

// Publish records frame as the latest and offers it to every viewer.
func (b *Broadcaster) Publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = frame
	for ch := range b.subs {
		offer(ch, frame)
	}
}

// Latest returns the last published frame, or nil.
func (b *Broadcaster) Latest() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Reset forgets the latest frame, used when the session ends.
func (b *Broadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = nil
}

// OnState drops the last frame once no session holds the camera, so new
// viewers do not see a frozen image.
func (b *Broadcaster) OnState(state domain.ScannerState) {
	if state.State == domain.SessionIdle {
		b.Reset()
	}
}

// OnScan is a no-op; the preview only follows frames.
func (b *Broadcaster) OnScan(domain.ScanResult) {}

// Subscribe registers a viewer. The returned func unregisters it.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	if b.latest != nil {
		ch <- b.latest
	}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
}

// Viewers returns the number of subscribed viewers.
func (b *Broadcaster) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func offer(ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
		return
	default:
	}
	// Replace the stale frame the viewer has not picked up yet.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}

// MJPEGWriter writes frames as a multipart/x-mixed-replace stream.
type MJPEGWriter struct {
	mw    *multipart.Writer
	flush func()
}

// NewMJPEGWriter wraps w. flush, when non-nil, is called after each frame.
func NewMJPEGWriter(w io.Writer, flush func()) *MJPEGWriter {
	return &MJPEGWriter{mw: multipart.NewWriter(w), flush: flush}
}

// ContentType is the value for the response Content-Type header.
func (m *MJPEGWriter) ContentType() string {
	return "multipart/x-mixed-replace; boundary=" + m.mw.Boundary()
}

// WriteFrame writes one JPEG part.
func (m *MJPEGWriter) WriteFrame(frame []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", strconv.Itoa(len(frame)))

	part, err := m.mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create part: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if m.flush != nil {
		m.flush()
	}
	return nil
}

// Close writes the closing boundary.
func (m *MJPEGWriter) Close() error {
	return m.mw.Close()
}

// Stream writes frames from b until ctx is done or a write fails.
func (b *Broadcaster) Stream(ctx context.Context, w *MJPEGWriter) error {
	frames, cancel := b.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-frames:
			if err := w.WriteFrame(frame); err != nil {
				return err
			}
		}
	}
}
