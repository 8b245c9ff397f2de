package torch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrUnsupported is returned when no torch LED is available.
var ErrUnsupported = errors.New("torch unsupported")

// Torch drives the light next to the camera.
type Torch interface {
	Supported() bool
	Set(on bool) error
}

// LED drives a sysfs LED class device (/sys/class/leds/<name>).
type LED struct {
	dir string

	mu  sync.Mutex
	max int
}

// NewLED finds the torch LED under root. When name is empty the first LED
// whose name contains "torch" or "flash" is used. A host without such an
// LED yields an LED whose Supported reports false.
func NewLED(root, name string) *LED {
	if name != "" {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
			return &LED{}
		}
		return &LED{dir: dir}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return &LED{}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := strings.ToLower(e.Name())
		if strings.Contains(n, "torch") || strings.Contains(n, "flash") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		dir := filepath.Join(root, n)
		if _, err := os.Stat(filepath.Join(dir, "brightness")); err == nil {
			return &LED{dir: dir}
		}
	}
	return &LED{}
}

// Name returns the LED device name, or "" when unsupported.
func (l *LED) Name() string {
	if l.dir == "" {
		return ""
	}
	return filepath.Base(l.dir)
}

func (l *LED) Supported() bool {
	return l.dir != ""
}

// Set switches the LED fully on or off.
func (l *LED) Set(on bool) error {
	if !l.Supported() {
		return ErrUnsupported
	}

	value := 0
	if on {
		m, err := l.maxBrightness()
		if err != nil {
			return err
		}
		value = m
	}

	path := filepath.Join(l.dir, "brightness")
	if err := os.WriteFile(path, []byte(strconv.Itoa(value)), 0o644); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("no permission to drive %s: %w", l.Name(), err)
		}
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (l *LED) maxBrightness() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 {
		return l.max, nil
	}

	data, err := os.ReadFile(filepath.Join(l.dir, "max_brightness"))
	if err != nil {
		// Some drivers omit max_brightness; 1 is always "on".
		if errors.Is(err, fs.ErrNotExist) {
			l.max = 1
			return l.max, nil
		}
		return 0, fmt.Errorf("failed to read max_brightness: %w", err)
	}
	m, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || m <= 0 {
		m = 1
	}
	l.max = m
	return l.max, nil
}

var _ Torch = (*LED)(nil)
