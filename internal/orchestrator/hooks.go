package orchestrator

import "context"

// SODHook runs once an exchange transitions from not-running to running
// (start-of-day). EODHook runs on the reverse transition. Both are no-op by
// default: portfolio reconciliation and archival are named out-of-scope
// collaborators, so these are extension points, not implemented pipelines.
type SODHook func(ctx context.Context, exchID string)
type EODHook func(ctx context.Context, exchID string)

func noopSOD(ctx context.Context, exchID string) {}
func noopEOD(ctx context.Context, exchID string) {}
