package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viral-platform/miniapp/internal/verifier"
	"go.uber.org/zap"
)

func TestSubscriptionGuard_FailureThenSuccess(t *testing.T) {
	v := &scriptedVerifier{}
	g := NewSubscriptionGuard(v, "check-subscription", "viralplatform", zap.NewNop())

	v.set("", errNetwork)
	require.False(t, g.CheckSubscription(context.Background(), 42, ""))
	st := g.State()
	require.False(t, st.IsSubscribed)
	require.False(t, st.IsChecking)
	require.NotNil(t, st.Error)
	require.Equal(t, "viralplatform", st.Channel)

	v.set(`{"isSubscribed":true}`, nil)
	require.True(t, g.CheckSubscription(context.Background(), 42, ""))
	st = g.State()
	require.True(t, st.IsSubscribed)
	require.False(t, st.IsChecking)
	require.Nil(t, st.Error)

	req, ok := v.payloads[1].(verifier.SubscriptionRequest)
	require.True(t, ok)
	require.Equal(t, verifier.SubscriptionRequest{Identity: 42, Channel: "viralplatform"}, req)
}

func TestSubscriptionGuard_ResponseShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    bool
		wantErr bool
	}{
		{"subscribed", `{"isSubscribed":true}`, true, false},
		{"not subscribed", `{"isSubscribed":false}`, false, false},
		{"missing field", `{}`, false, false},
		{"truthy string", `{"isSubscribed":"yes"}`, false, false},
		{"not an object", `[1,2]`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &scriptedVerifier{body: tt.body}
			g := NewSubscriptionGuard(v, "fn", "chan", zap.NewNop())

			require.Equal(t, tt.want, g.CheckSubscription(context.Background(), 7, "other"))
			st := g.State()
			require.Equal(t, tt.want, st.IsSubscribed)
			require.Equal(t, tt.wantErr, st.Error != nil)
			require.Equal(t, "other", st.Channel)
		})
	}
}

func TestSubscriptionGuard_InvalidIdentity(t *testing.T) {
	v := &scriptedVerifier{body: `{"isSubscribed":true}`}
	g := NewSubscriptionGuard(v, "fn", "chan", zap.NewNop())

	require.False(t, g.CheckSubscription(context.Background(), 0, ""))
	require.Zero(t, v.calls.Load())
	st := g.State()
	require.NotNil(t, st.Error)
	require.False(t, st.IsChecking)
}

func TestSubscriptionGuard_CheckingWhileInFlight(t *testing.T) {
	v := &scriptedVerifier{body: `{"isSubscribed":true}`, gate: make(chan struct{})}
	g := NewSubscriptionGuard(v, "fn", "chan", zap.NewNop())

	done := make(chan bool)
	go func() { done <- g.CheckSubscription(context.Background(), 1, "") }()

	require.Eventually(t, func() bool { return v.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.True(t, g.State().IsChecking)

	close(v.gate)
	require.True(t, <-done)
	require.False(t, g.State().IsChecking)
}

func TestSubscriptionGuard_ResultAfterCloseIsDropped(t *testing.T) {
	v := &scriptedVerifier{body: `{"isSubscribed":true}`, gate: make(chan struct{})}
	g := NewSubscriptionGuard(v, "fn", "chan", zap.NewNop())

	done := make(chan bool)
	go func() { done <- g.CheckSubscription(context.Background(), 1, "") }()
	require.Eventually(t, func() bool { return v.calls.Load() == 1 }, time.Second, time.Millisecond)

	g.Close()
	close(v.gate)
	<-done

	require.False(t, g.State().IsSubscribed)
	require.False(t, g.CheckSubscription(context.Background(), 1, ""))
	require.EqualValues(t, 1, v.calls.Load())
}
