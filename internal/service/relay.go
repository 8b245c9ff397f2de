package service

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
	pkglog "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
	"github.com/weiawesome/wes-io-live/ticket-scanner/pkg/pubsub"
)

// Relay forwards station events to the event bus. Publishing runs in the
// background and never blocks the decode loop. A Relay without a
// publisher drops everything.
type Relay struct {
	pub       pubsub.Publisher
	stationID string
	channel   string
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewRelay creates a relay for stationID. pub may be nil.
func NewRelay(pub pubsub.Publisher, stationID string, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Relay{
		pub:       pub,
		stationID: stationID,
		channel:   pubsub.ScannerToDashboardChannel(stationID),
		timeout:   timeout,
	}
}

// Enabled reports whether events are actually published.
func (r *Relay) Enabled() bool {
	return r != nil && r.pub != nil
}

// ScanDecoded publishes a decoded code.
func (r *Relay) ScanDecoded(ctx context.Context, result domain.ScanResult) {
	r.publish(ctx, pubsub.EventScanDecoded, pubsub.ScanDecodedPayload{
		ScanID:    result.ID,
		Text:      result.Text,
		CameraID:  result.CameraID,
		SessionID: result.SessionID,
	})
}

// StationOnline announces the station with its camera count.
func (r *Relay) StationOnline(ctx context.Context, cameras int) {
	r.publish(ctx, pubsub.EventStationOnline, pubsub.StationPayload{
		StationID: r.stationID,
		Cameras:   cameras,
	})
}

// StationClosed announces the station going away.
func (r *Relay) StationClosed(ctx context.Context) {
	r.publish(ctx, pubsub.EventStationClosed, pubsub.StationPayload{
		StationID: r.stationID,
	})
}

func (r *Relay) publish(ctx context.Context, eventType string, payload interface{}) {
	if !r.Enabled() {
		return
	}

	l := pkglog.Ctx(ctx)
	event, err := pubsub.NewEvent(eventType, r.stationID, payload)
	if err != nil {
		l.Error().Err(err).Str("event", eventType).Msg("failed to build relay event")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.pub.Publish(pubCtx, r.channel, event); err != nil {
			l.Warn().Err(err).Str("event", eventType).Msg("failed to relay event")
			return
		}
		l.Debug().Str("event", eventType).Msg("event relayed")
	}()
}

// Close waits for in-flight publishes and closes the publisher.
func (r *Relay) Close() error {
	if !r.Enabled() {
		return nil
	}
	r.wg.Wait()
	return r.pub.Close()
}
