package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

// ErrNotLocked is returned by a guarded bus when a transaction is attempted without
// holding the bus lock.
var ErrNotLocked = errors.New("bus: transaction attempted without holding the bus lock")

// Lock serializes all traffic on the shared I2C bus. Both the acquisition cycle and
// the display refresh must hold it while talking to a device. It is a one-slot
// semaphore so waiting can be abandoned through a context. No fairness is promised.
type Lock struct {
	slot chan struct{}
}

func NewLock() *Lock {
	return &Lock{slot: make(chan struct{}, 1)}
}

func (l *Lock) Acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lock) Release() {
	select {
	case <-l.slot:
	default:
		panic("bus: release of an unlocked bus")
	}
}

func (l *Lock) Held() bool {
	return len(l.slot) == 1
}

// Do runs fn with the lock held.
func (l *Lock) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Guarded wraps a bus so every transaction verifies the lock is held.
type Guarded struct {
	i2c.Bus
	lock *Lock
}

func Guard(b i2c.Bus, lock *Lock) *Guarded {
	return &Guarded{Bus: b, lock: lock}
}

func (g *Guarded) Tx(addr uint16, w, r []byte) error {
	if !g.lock.Held() {
		log.Error().Uint16("addr", addr).Msg("I2C transaction without bus lock")
		return ErrNotLocked
	}
	return g.Bus.Tx(addr, w, r)
}

// Open initializes the host drivers and opens the named I2C bus; an empty name
// selects the first bus available.
func Open(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", name, err)
	}
	log.Info().Str("bus", b.String()).Msg("I2C bus opened")
	return b, nil
}
