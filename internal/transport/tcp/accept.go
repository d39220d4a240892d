package tcp

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lmittmann/tint"
)

const (
	acceptInitialDelay = 5 * time.Millisecond
	acceptMaxDelay     = time.Second
)

// AcceptLoop hands every connection accepted on l to handle until quit is
// closed or l is closed. Failed accepts are retried after a delay that starts
// at 5ms, doubles on each consecutive failure up to 1s and resets once a
// connection is accepted.
func AcceptLoop(l net.Listener, quit <-chan struct{}, logger *slog.Logger, handle func(net.Conn)) {
	delay := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(acceptInitialDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(acceptMaxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	failing := false

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if !failing {
				delay.Reset()
				failing = true
			}
			wait := delay.NextBackOff()
			logger.Warn("failed to accept connection", "retry_in", wait, tint.Err(err))
			t := time.NewTimer(wait)
			select {
			case <-quit:
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}

		failing = false
		handle(conn)
	}
}
