package transmit

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// TCP writes each payload on a fresh connection and closes it; the hub reads until EOF.
type TCP struct {
	Addr    string
	Timeout time.Duration
}

func (t *TCP) Send(ctx context.Context, payload []byte) error {
	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to connect to hub %s: %w", t.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := t.deadline(ctx); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set deadline for hub %s: %w", t.Addr, err)
		}
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send to hub %s: %w", t.Addr, err)
	}
	log.Debug().Str("addr", t.Addr).Int("bytes", len(payload)).Msg("Snapshot sent over TCP")
	return nil
}

// deadline is the earlier of the configured timeout and the context deadline.
func (t *TCP) deadline(ctx context.Context) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if t.Timeout > 0 {
		if d := time.Now().Add(t.Timeout); !ok || d.Before(deadline) {
			return d, true
		}
	}
	return deadline, ok
}
