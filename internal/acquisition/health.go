package acquisition

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/model"
)

type Notifier interface {
	Send(title, message string) error
}

// Health tracks consecutive cycles in which a sensor produced no reading. It notifies
// once when a sensor crosses the threshold and once more when it recovers.
type Health struct {
	mu        sync.Mutex
	node      int
	threshold int
	notifier  Notifier
	misses    map[model.Kind]int
	alerted   map[model.Kind]bool
}

func NewHealth(node, threshold int, notifier Notifier) *Health {
	if threshold < 1 {
		threshold = 1
	}
	return &Health{
		node:      node,
		threshold: threshold,
		notifier:  notifier,
		misses:    make(map[model.Kind]int),
		alerted:   make(map[model.Kind]bool),
	}
}

func (h *Health) Observe(expected []model.Kind, snap *model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, kind := range expected {
		if _, ok := snap.Readings[kind]; ok {
			if h.alerted[kind] {
				h.notify(
					fmt.Sprintf("Node %d: %s recovered", h.node, kind),
					fmt.Sprintf("%s is reporting again after %d missed cycles.", kind, h.misses[kind]),
				)
			}
			h.misses[kind] = 0
			h.alerted[kind] = false
			continue
		}

		h.misses[kind]++
		if h.misses[kind] >= h.threshold && !h.alerted[kind] {
			h.alerted[kind] = true
			h.notify(
				fmt.Sprintf("Node %d: %s not reporting", h.node, kind),
				fmt.Sprintf("%s has produced no reading for %d consecutive cycles.", kind, h.misses[kind]),
			)
		}
	}
}

// Misses returns the current consecutive miss count for kind.
func (h *Health) Misses(kind model.Kind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.misses[kind]
}

func (h *Health) notify(title, message string) {
	log.Warn().Str("title", title).Msg(message)
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Send(title, message); err != nil {
		log.Error().Err(err).Str("title", title).Msg("Failed to send sensor health notification")
	}
}
