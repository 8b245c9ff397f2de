package service

import (
	"context"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	got, err := store.Get(ctx, "station-1")
	if err != nil || got != nil {
		t.Fatalf("Get on empty store = %+v, %v; want nil, nil", got, err)
	}

	state := domain.ScannerState{
		StationID:  "station-1",
		Cameras:    []domain.CameraDevice{{ID: "cam1"}},
		State:      domain.SessionRunning,
		LastResult: &domain.ScanResult{Text: "TICKET-0042"},
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	state.LastResult.Text = "changed"

	got, err = store.Get(ctx, "station-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.State != domain.SessionRunning || got.LastResult.Text != "TICKET-0042" {
		t.Errorf("Get = %+v", got)
	}

	if err := store.Delete(ctx, "station-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Get(ctx, "station-1"); got != nil {
		t.Errorf("Get after Delete = %+v, want nil", got)
	}
}

func TestMemoryStateStoreIgnoresOlderSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	now := time.Now().UTC()

	newer := domain.ScannerState{StationID: "station-1", State: domain.SessionRunning, ScanCount: 2, UpdatedAt: now}
	older := domain.ScannerState{StationID: "station-1", State: domain.SessionStarting, ScanCount: 1, UpdatedAt: now.Add(-time.Second)}

	if err := store.Save(ctx, newer); err != nil {
		t.Fatalf("Save newer: %v", err)
	}
	if err := store.Save(ctx, older); err != nil {
		t.Fatalf("Save older: %v", err)
	}

	got, err := store.Get(ctx, "station-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.State != domain.SessionRunning || got.ScanCount != 2 {
		t.Errorf("Get = %+v, want the newer snapshot", got)
	}

	// Other stations are independent.
	if err := store.Save(ctx, domain.ScannerState{StationID: "station-2", UpdatedAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("Save station-2: %v", err)
	}
	if got, _ := store.Get(ctx, "station-2"); got == nil {
		t.Error("station-2 snapshot missing")
	}
}

func TestRelayWithoutPublisher(t *testing.T) {
	relay := NewRelay(nil, "station-1", 0)
	if relay.Enabled() {
		t.Fatal("relay without publisher should be disabled")
	}
	relay.ScanDecoded(context.Background(), domain.ScanResult{Text: "x"})
	if err := relay.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	var nilRelay *Relay
	nilRelay.StationOnline(context.Background(), 1)
	if err := nilRelay.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}
