package health

import (
	"context"
	"fmt"
)

// AcceptLoopCheck reports unhealthy once the listener's accept loop
// has stopped (observed via a done channel that closes on exit).
func AcceptLoopCheck(done <-chan struct{}) Check {
	return func(ctx context.Context) error {
		select {
		case <-done:
			return fmt.Errorf("accept loop has stopped")
		default:
			return nil
		}
	}
}

// RegistrySizeCheck fails only if the node cannot report a registry
// size at all; a node with zero connected clients is still healthy.
func RegistrySizeCheck(size func() int) Check {
	return func(ctx context.Context) error {
		if size == nil {
			return fmt.Errorf("registry size accessor not configured")
		}
		size()
		return nil
	}
}
