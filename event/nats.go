package event

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Fundable-Protocol/stellar-client/natsclient"
)

// SubjectPrefix is the NATS subject root for emitted events; the event type
// becomes the final token, e.g. "fundable.events.streamcreated".
const SubjectPrefix = "fundable.events"

// NATSSink publishes events to NATS subjects.
type NATSSink struct {
	client *natsclient.Client
	logger *slog.Logger
}

// NewNATSSink creates a sink publishing through the given client.
func NewNATSSink(client *natsclient.Client, logger *slog.Logger) *NATSSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{client: client, logger: logger}
}

// Emit implements Sink. Failures are logged and swallowed.
func (s *NATSSink) Emit(_ context.Context, e Event) {
	data, err := e.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}

	subject := SubjectPrefix + "." + strings.ToLower(string(e.Type))
	if err := s.client.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish event", "type", e.Type, "subject", subject, "error", err)
	}
}
