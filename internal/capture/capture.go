package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	pkglog "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
)

// ErrNoFrame is returned when the device produced no frame before the
// start timeout.
var ErrNoFrame = errors.New("camera produced no frame")

// maxFrameSize bounds a single JPEG frame read from ffmpeg.
const maxFrameSize = 8 << 20

// Options configures the ffmpeg capture process.
type Options struct {
	FFmpegPath   string
	InputFormat  string
	Width        int
	Height       int
	FPS          int
	// AspectRatio crops frames to width/height around the centre.
	// Zero keeps the device's native shape.
	AspectRatio  float64
	JPEGQuality  int
	StartTimeout time.Duration
}

// Source is a running capture of one device. Frames are JPEG-encoded.
type Source struct {
	deviceID string
	cmd      *exec.Cmd
	frames   chan []byte
	done     chan struct{}
	stderr   *tailBuffer

	mu      sync.Mutex
	err     error
	closing bool // set by Close; the exit it causes leaves err nil
}

// BuildArgs returns the ffmpeg arguments used to capture deviceID as a
// stream of JPEG images on stdout.
func BuildArgs(deviceID string, opts Options) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

	if opts.InputFormat != "" {
		args = append(args, "-f", opts.InputFormat)
	}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	}
	args = append(args, "-i", deviceID)

	var filters []string
	if opts.FPS > 0 {
		filters = append(filters, "fps="+strconv.Itoa(opts.FPS))
	}
	if opts.AspectRatio > 0 {
		r := strconv.FormatFloat(opts.AspectRatio, 'f', -1, 64)
		filters = append(filters, fmt.Sprintf("crop='min(iw,ih*%s)':'min(ih,iw/%s)'", r, r))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 5
	}
	args = append(args,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(quality),
		"pipe:1",
	)
	return args
}

// Open starts capturing deviceID and waits until the first frame arrives,
// which is the camera handshake. The returned Source must be closed.
func Open(ctx context.Context, deviceID string, opts Options) (*Source, error) {
	path := opts.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}

	cmd := exec.Command(path, BuildArgs(deviceID, opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &Source{
		deviceID: deviceID,
		cmd:      cmd,
		frames:   make(chan []byte, 2),
		done:     make(chan struct{}),
		stderr:   stderr,
	}

	first := make(chan struct{})
	go s.readFrames(bufio.NewScanner(stdout), first)

	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-first:
		return s, nil
	case <-s.done:
		select {
		case <-first:
			// Delivered a frame before exiting; the reader reports the exit.
			return s, nil
		default:
		}
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, s.Err())
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("%w within %s", ErrNoFrame, timeout)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// Frames delivers captured frames. Frames are dropped while the consumer
// is busy, so a slow decoder always sees recent images.
func (s *Source) Frames() <-chan []byte {
	return s.frames
}

// Done is closed once the ffmpeg process has exited.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err returns why the capture ended, if it ended on its own.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops ffmpeg and waits for the reader to finish.
func (s *Source) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill ffmpeg: %w", err)
		}
	}
	<-s.done
	return nil
}

func (s *Source) readFrames(scanner *bufio.Scanner, first chan struct{}) {
	defer close(s.done)
	defer close(s.frames)

	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	scanner.Split(SplitJPEG)

	sawFirst := false
	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)
		if !sawFirst {
			sawFirst = true
			close(first)
		}

		select {
		case s.frames <- frame:
		default:
			// Consumer busy, drop frame
		}
	}

	scanErr := scanner.Err()
	waitErr := s.cmd.Wait()

	s.mu.Lock()
	switch {
	case s.closing:
	case scanErr != nil:
		s.err = fmt.Errorf("failed to read frames: %w", scanErr)
	case waitErr != nil:
		s.err = fmt.Errorf("ffmpeg exited: %w: %s", waitErr, s.stderr.String())
	}
	s.mu.Unlock()

	l := pkglog.L()
	l.Debug().Str(pkglog.FieldCameraID, s.deviceID).Err(s.Err()).Msg("capture process ended")
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// SplitJPEG is a bufio.SplitFunc that yields complete JPEG images from a
// concatenated stream, skipping bytes between images.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) <= 1 {
			return 0, nil, nil
		}
		// Keep the last byte: it may be the first half of a marker.
		return len(data) - 1, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil // truncated image
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
