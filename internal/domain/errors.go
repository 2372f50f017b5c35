package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoPrice           = errors.New("no price available")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrExecutionFailed   = errors.New("order execution failed")
	ErrMissingCredential = errors.New("missing credential")
)

// DetectionError wraps a parse or model failure inside opportunity detection.
// Detection errors are logged by the caller and degrade to "no opportunity";
// they never escalate past the scan loop.
type DetectionError struct {
	Stage      string // e.g. "extract_target", "parse_window"
	ContractID string
	Err        error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detect %s: contract %s: %v", e.Stage, e.ContractID, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}
