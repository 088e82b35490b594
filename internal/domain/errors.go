package domain

import "errors"

// Backend-reported outcomes that are not transport faults. The gateway
// returns these so the orchestrator can pick the matching fixed reply.
var (
	// ErrRunFailed means the backend itself marked the run failed.
	ErrRunFailed = errors.New("assistant run failed")
	// ErrNoReply means the run completed but no assistant turn was found.
	ErrNoReply = errors.New("no assistant reply")
)
