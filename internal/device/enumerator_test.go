package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeNode(t *testing.T, root, node, name, index string) {
	t.Helper()
	dir := filepath.Join(root, node)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if name != "" {
		if err := os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644); err != nil {
			t.Fatalf("write name: %v", err)
		}
	}
	if index != "" {
		if err := os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644); err != nil {
			t.Fatalf("write index: %v", err)
		}
	}
}

func TestSysfsEnumeratorOrdersCaptureNodes(t *testing.T) {
	root := t.TempDir()
	writeNode(t, root, "video10", "Back", "0")
	writeNode(t, root, "video2", "Front", "0")
	writeNode(t, root, "video3", "Front", "1") // metadata node of video2
	writeNode(t, root, "video4", "", "")
	writeNode(t, root, "v4l-subdev0", "sensor", "0")

	cameras, err := NewSysfsEnumerator(root, "/dev").Cameras(context.Background())
	if err != nil {
		t.Fatalf("Cameras: %v", err)
	}

	want := []struct{ id, label string }{
		{"/dev/video2", "Front"},
		{"/dev/video4", ""},
		{"/dev/video10", "Back"},
	}
	if len(cameras) != len(want) {
		t.Fatalf("got %d cameras (%+v), want %d", len(cameras), cameras, len(want))
	}
	for i, w := range want {
		if cameras[i].ID != w.id || cameras[i].Label != w.label {
			t.Errorf("camera[%d] = %+v, want {%s %s}", i, cameras[i], w.id, w.label)
		}
	}
}

func TestSysfsEnumeratorMissingClass(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	cameras, err := NewSysfsEnumerator(root, "/dev").Cameras(context.Background())
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if len(cameras) != 0 {
		t.Errorf("cameras = %+v, want none", cameras)
	}
}

func TestSysfsEnumeratorEmpty(t *testing.T) {
	cameras, err := NewSysfsEnumerator(t.TempDir(), "/dev").Cameras(context.Background())
	if err != nil {
		t.Fatalf("Cameras: %v", err)
	}
	if len(cameras) != 0 {
		t.Errorf("cameras = %+v, want none", cameras)
	}
}
