// Package transmit sends each snapshot to the hub, over the hub's raw TCP protocol or
// over HTTP.
package transmit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/outbox"
)

// Transmitter delivers one encoded snapshot.
type Transmitter interface {
	Send(ctx context.Context, payload []byte) error
}

// Encode renders a snapshot in the shape the hub reads: sensor kind to attribute map,
// with the node id inside each attribute map.
func Encode(snap *model.Snapshot) ([]byte, error) {
	return json.Marshal(snap.Data())
}

// Sink adapts a Transmitter to the acquisition sink interface.
type Sink struct {
	name string
	t    Transmitter
}

func NewSink(name string, t Transmitter) *Sink {
	return &Sink{name: name, t: t}
}

func (s *Sink) Name() string { return s.name }

func (s *Sink) Consume(ctx context.Context, snap *model.Snapshot) error {
	payload, err := Encode(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return s.t.Send(ctx, payload)
}

// Reliable queues payloads the wrapped transmitter could not deliver and retries them,
// oldest first, before every new send.
type Reliable struct {
	next   Transmitter
	outbox *outbox.Outbox
}

func NewReliable(next Transmitter, o *outbox.Outbox) *Reliable {
	return &Reliable{next: next, outbox: o}
}

func (r *Reliable) Send(ctx context.Context, payload []byte) error {
	_, err := r.outbox.Drain(func(p []byte) error {
		return r.next.Send(ctx, p)
	})
	if err == nil {
		err = r.next.Send(ctx, payload)
	}
	if err == nil {
		return nil
	}

	if qerr := r.outbox.Push(payload); qerr != nil {
		log.Error().Err(qerr).Msg("Failed to queue undelivered payload")
		return fmt.Errorf("send failed: %w (payload lost: %v)", err, qerr)
	}
	queued, _ := r.outbox.Len()
	log.Warn().Err(err).Int("queued", queued).Msg("Hub unreachable, payload queued")
	return fmt.Errorf("send failed, payload queued: %w", err)
}
