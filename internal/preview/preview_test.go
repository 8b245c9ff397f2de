package preview

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

func TestSubscribeGetsLatestFirst(t *testing.T) {
	b := NewBroadcaster()
	b.Publish([]byte("one"))

	frames, cancel := b.Subscribe()
	defer cancel()

	select {
	case f := <-frames:
		if string(f) != "one" {
			t.Errorf("frame = %q, want one", f)
		}
	default:
		t.Fatal("subscriber should receive the latest frame immediately")
	}
}

func TestSlowViewerSeesNewestFrame(t *testing.T) {
	b := NewBroadcaster()
	frames, cancel := b.Subscribe()
	defer cancel()

	b.Publish([]byte("one"))
	b.Publish([]byte("two"))
	b.Publish([]byte("three"))

	if f := <-frames; string(f) != "three" {
		t.Errorf("frame = %q, want three", f)
	}
	select {
	case f := <-frames:
		t.Errorf("unexpected queued frame %q", f)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe()
	if b.Viewers() != 1 {
		t.Fatalf("viewers = %d, want 1", b.Viewers())
	}
	cancel()
	cancel()
	if b.Viewers() != 0 {
		t.Errorf("viewers = %d, want 0", b.Viewers())
	}
}

func TestReset(t *testing.T) {
	b := NewBroadcaster()
	b.Publish([]byte("one"))
	b.Reset()
	if b.Latest() != nil {
		t.Errorf("latest = %q, want nil", b.Latest())
	}
}

func TestStreamWritesMultipart(t *testing.T) {
	b := NewBroadcaster()
	b.Publish([]byte("jpeg-bytes"))

	var buf bytes.Buffer
	w := NewMJPEGWriter(&buf, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := b.Stream(ctx, w); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(w.ContentType())
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		t.Errorf("media type = %s", mediaType)
	}

	r := multipart.NewReader(strings.NewReader(buf.String()), params["boundary"])
	part, err := r.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("part content type = %s", ct)
	}
	body, _ := io.ReadAll(part)
	if string(body) != "jpeg-bytes" {
		t.Errorf("part body = %q", body)
	}
}

func TestIdleStateClearsFrame(t *testing.T) {
	b := NewBroadcaster()
	b.Publish([]byte("one"))

	b.OnState(domain.ScannerState{State: domain.SessionRunning})
	if b.Latest() == nil {
		t.Fatal("running state should keep the frame")
	}
	b.OnState(domain.ScannerState{State: domain.SessionIdle})
	if b.Latest() != nil {
		t.Error("idle state should clear the frame")
	}
}
