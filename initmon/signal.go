package initmon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalRequest maps an OS signal to the request it triggers: SIGHUP reloads,
// SIGTERM and SIGINT terminate.
func SignalRequest(sig os.Signal) (Request, bool) {
	switch sig {
	case syscall.SIGHUP:
		return RequestReload, true
	case syscall.SIGTERM, syscall.SIGINT:
		return RequestTerminate, true
	default:
		return 0, false
	}
}

// NotifySignals forwards SIGHUP, SIGTERM and SIGINT to the supervisor as
// requests until ctx is canceled or the supervisor stops. The returned function
// stops the forwarding.
//
// The forwarding goroutine does nothing but queue requests. While a request is
// being handled, at most one more signal is kept pending and the rest are
// dropped.
func NotifySignals(ctx context.Context, s *Supervisor) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.Done():
				return
			case sig := <-sigs:
				if req, ok := SignalRequest(sig); ok {
					s.Request(req)
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		cancel()
	}
}
