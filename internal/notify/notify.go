// Package notify tells people about new review requests: a broadcast
// webhook for the team channel and a direct message to the reviewer.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Notification is one review-request announcement.
type Notification struct {
	User               string // reviewer email, or the unassigned label
	MessagingID        string // direct-message destination; "" skips the DM
	Link               string
	Text               string // direct-message body
	EffortMinutes      int
	TotalEffortMinutes int
	Timestamp          time.Time
}

// Broadcaster posts a notification to a shared channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, n Notification) error
}

// DirectSender delivers a text message to one person.
type DirectSender interface {
	SendText(ctx context.Context, messagingID, text string) error
}

// Outcome reports which deliveries succeeded. A channel that is not
// configured, or a direct message with no destination, is neither delivered
// nor failed.
type Outcome struct {
	Broadcast    bool
	Direct       bool
	BroadcastErr error
	DirectErr    error
}

// Notifier fans a notification out to the configured channels. Either
// channel may be nil.
type Notifier struct {
	broadcast Broadcaster
	direct    DirectSender
	logger    *zap.Logger
}

// New creates a Notifier.
func New(broadcast Broadcaster, direct DirectSender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{broadcast: broadcast, direct: direct, logger: logger}
}

// Notify sends the broadcast, then the direct message. Failures are logged
// and reflected in the Outcome; they never abort the caller.
func (n *Notifier) Notify(ctx context.Context, note Notification) Outcome {
	var out Outcome
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now()
	}

	if n.broadcast != nil {
		if err := n.broadcast.Broadcast(ctx, note); err != nil {
			n.logger.Warn("broadcast notification failed", zap.String("link", note.Link), zap.Error(err))
			out.BroadcastErr = err
		} else {
			out.Broadcast = true
		}
	}

	switch {
	case n.direct == nil:
	case note.MessagingID == "":
		n.logger.Info("no messaging id for reviewer, skipping direct message", zap.String("user", note.User))
	default:
		if err := n.direct.SendText(ctx, note.MessagingID, note.Text); err != nil {
			n.logger.Warn("direct message failed", zap.String("user", note.User), zap.Error(err))
			out.DirectErr = err
		} else {
			out.Direct = true
		}
	}
	return out
}
