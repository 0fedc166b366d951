package services

import (
	"context"
	"sync"

	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/verifier"
	"go.uber.org/zap"
)

const (
	errSubscriptionCheckFailed = "Failed to check subscription"
	errInvalidIdentity         = "Invalid identity"
)

// SubscriptionGuard tracks whether one identity is subscribed to a required
// channel. One guard per session; overlapping checks on the same guard race
// and the last one to settle wins.
type SubscriptionGuard struct {
	verifier       verifier.RemoteVerifier
	function       string
	defaultChannel string
	log            *zap.Logger

	mu       sync.Mutex
	state    models.SubscriptionState
	inflight int
	closed   bool
}

func NewSubscriptionGuard(v verifier.RemoteVerifier, function, defaultChannel string, log *zap.Logger) *SubscriptionGuard {
	return &SubscriptionGuard{
		verifier:       v,
		function:       function,
		defaultChannel: defaultChannel,
		log:            log,
	}
}

// CheckSubscription asks the remote backend whether identity is subscribed to
// channel (the configured channel when empty). Failures resolve to false and
// are recorded in the state error; they are never returned.
func (g *SubscriptionGuard) CheckSubscription(ctx context.Context, identity int64, channel string) bool {
	if channel == "" {
		channel = g.defaultChannel
	}

	if !g.begin(channel) {
		return false
	}

	var subscribed bool
	var errMsg *string
	defer func() { g.settle(subscribed, errMsg) }()

	if identity <= 0 {
		msg := errInvalidIdentity
		errMsg = &msg
		return false
	}

	ok, err := verifier.CheckSubscription(ctx, g.verifier, g.function, verifier.SubscriptionRequest{
		Identity: identity,
		Channel:  channel,
	})
	if err != nil {
		g.log.Warn("subscription check failed",
			zap.Int64("identity", identity),
			zap.String("channel", channel),
			zap.Error(err),
		)
		msg := errSubscriptionCheckFailed
		errMsg = &msg
		return false
	}

	subscribed = ok
	return subscribed
}

func (g *SubscriptionGuard) begin(channel string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.inflight++
	g.state.IsChecking = true
	g.state.Error = nil
	g.state.Channel = channel
	return true
}

func (g *SubscriptionGuard) settle(subscribed bool, errMsg *string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.log.Debug("dropping subscription result after close")
		return
	}
	g.inflight--
	g.state.IsSubscribed = subscribed
	g.state.Error = errMsg
	g.state.IsChecking = g.inflight > 0
}

func (g *SubscriptionGuard) State() models.SubscriptionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state
	if st.Error != nil {
		e := *st.Error
		st.Error = &e
	}
	return st
}

// Close stops later results from touching the state.
func (g *SubscriptionGuard) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
