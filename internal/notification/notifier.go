// Package notification delivers formatted tracker messages to external
// channels (Telegram, log output) for trading events.
package notification

import (
	"context"
	"log"
)

// Channel selects the audience for a message. Each alert class goes to its
// own channel so subscribers can pick the noise level they want.
type Channel string

const (
	ChannelTrend  Channel = "trend"
	ChannelVolume Channel = "volume"
	ChannelRSI    Channel = "rsi"
)

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers a message. Returns error if delivery fails.
	Send(ctx context.Context, ch Channel, text string) error
}

// LogNotifier writes messages to the process log (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, ch Channel, text string) error {
	log.Printf("[notify] [%s] %s", ch, text)
	return nil
}
