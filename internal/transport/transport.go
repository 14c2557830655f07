// Package transport defines the vendor-agnostic I/O boundary that carries
// audio, text, and control frames between a client (a browser, phone
// bridge, or test harness) and a session.
package transport

import (
	"context"

	"github.com/orbtalk/orb/internal/frames"
)

// Transport is a bidirectional frame stream shared by all client
// connections; each frame's MetaStreamID names the connection it belongs to.
// Implementations own their network lifecycle; Start/Stop are idempotent
// from the orchestrator's point of view.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// OutboundDialer lets a transport initiate an outbound call or connection
// that will eventually attach as the human participant of a session.
type OutboundDialer interface {
	Dial(ctx context.Context, to, from, callbackURL string) (id string, err error)
}
