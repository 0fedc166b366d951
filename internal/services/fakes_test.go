package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/viral-platform/miniapp/internal/verifier"
)

// scriptedVerifier answers every call with the same canned body or error and
// counts calls per function.
type scriptedVerifier struct {
	mu       sync.Mutex
	body     string
	err      error
	calls    atomic.Int32
	payloads []any
	gate     chan struct{} // when set, calls block until it is closed
}

func (v *scriptedVerifier) set(body string, err error) {
	v.mu.Lock()
	v.body, v.err = body, err
	v.mu.Unlock()
}

func (v *scriptedVerifier) Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error) {
	v.calls.Add(1)
	v.mu.Lock()
	v.payloads = append(v.payloads, payload)
	gate := v.gate
	v.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	return json.RawMessage(v.body), nil
}

var errNetwork = &verifier.TransportError{Function: "test", Err: errors.New("connection refused")}
