package health

import (
	"context"
	"fmt"
)

// IndexCheck reports down until the first snapshot is available and
// degraded while the current snapshot holds no documents.
func IndexCheck(state func() (ready bool, docs int)) Check {
	return func(ctx context.Context) ComponentHealth {
		ready, docs := state()
		switch {
		case !ready:
			return ComponentHealth{Status: StatusDown, Message: "no index snapshot yet"}
		case docs == 0:
			return ComponentHealth{Status: StatusDegraded, Message: "index is empty"}
		default:
			return ComponentHealth{Status: StatusUp, Message: fmt.Sprintf("%d documents", docs)}
		}
	}
}

// PingCheck wraps a dependency ping; any error marks the dependency down.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}
