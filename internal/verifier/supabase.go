package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// SupabaseVerifier calls Supabase Edge Functions at {baseURL}/functions/v1/{name}.
type SupabaseVerifier struct {
	baseURL    string
	anonKey    string
	maxRetry   time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

func NewSupabaseVerifier(baseURL, anonKey string, timeout, maxRetry time.Duration, log *zap.Logger) *SupabaseVerifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SupabaseVerifier{
		baseURL:  strings.TrimRight(baseURL, "/"),
		anonKey:  anonKey,
		maxRetry: maxRetry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Invoke posts payload as JSON and returns the raw response body. Network
// errors, 429 and 5xx answers are retried until maxRetry elapses; other
// non-2xx answers fail immediately.
func (v *SupabaseVerifier) Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", function, err)
	}
	url := fmt.Sprintf("%s/functions/v1/%s", v.baseURL, function)

	var out json.RawMessage
	op := func() error {
		raw, err := v.do(ctx, function, url, body)
		if err != nil {
			return err
		}
		out = raw
		return nil
	}

	notify := func(err error, wait time.Duration) {
		v.log.Warn("remote function call failed, retrying",
			zap.String("function", function),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, v.newBackOff(ctx), notify); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *SupabaseVerifier) newBackOff(ctx context.Context) backoff.BackOff {
	if v.maxRetry <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxElapsedTime(v.maxRetry),
	)
	return backoff.WithContext(b, ctx)
}

func (v *SupabaseVerifier) do(ctx context.Context, function, url string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if v.anonKey != "" {
		req.Header.Set("apikey", v.anonKey)
		req.Header.Set("Authorization", "Bearer "+v.anonKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		terr := &TransportError{Function: function, Err: err}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(terr)
		}
		return nil, terr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Function: function, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := &TransportError{Function: function, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(data)))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, terr
		}
		return nil, backoff.Permanent(terr)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, backoff.Permanent(&ValidationError{Reason: "empty body"})
	}
	return json.RawMessage(data), nil
}
