package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

// ErrUnsupported is returned when the host exposes no video device class.
var ErrUnsupported = errors.New("video device enumeration unsupported on this host")

// Enumerator lists the video-capture devices available to the station.
type Enumerator interface {
	Cameras(ctx context.Context) ([]domain.CameraDevice, error)
}

// SysfsEnumerator reads V4L2 devices from /sys/class/video4linux.
type SysfsEnumerator struct {
	sysfsRoot string
	devRoot   string
}

// NewSysfsEnumerator creates an enumerator rooted at the given sysfs class
// directory; device IDs are built under devRoot.
func NewSysfsEnumerator(sysfsRoot, devRoot string) *SysfsEnumerator {
	return &SysfsEnumerator{
		sysfsRoot: sysfsRoot,
		devRoot:   devRoot,
	}
}

type videoNode struct {
	number int
	device domain.CameraDevice
}

// Cameras returns capture nodes ordered by device number. Nodes whose
// index is not 0 are metadata or secondary nodes of the same camera and
// are skipped.
func (e *SysfsEnumerator) Cameras(ctx context.Context) ([]domain.CameraDevice, error) {
	entries, err := os.ReadDir(e.sysfsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("failed to read %s: %w", e.sysfsRoot, err)
	}

	nodes := make([]videoNode, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		number, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}

		dir := filepath.Join(e.sysfsRoot, name)
		if index, ok := readAttr(dir, "index"); ok && index != "0" {
			continue
		}
		label, _ := readAttr(dir, "name")

		nodes = append(nodes, videoNode{
			number: number,
			device: domain.CameraDevice{
				ID:    filepath.Join(e.devRoot, name),
				Label: label,
			},
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].number < nodes[j].number })

	cameras := make([]domain.CameraDevice, 0, len(nodes))
	for _, n := range nodes {
		cameras = append(cameras, n.device)
	}
	return cameras, nil
}

func readAttr(dir, attr string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

var _ Enumerator = (*SysfsEnumerator)(nil)
