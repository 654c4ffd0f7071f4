// AngelaMos | 2026
// notifier.go

package notifier

import (
	"context"
	"log/slog"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer is the fire-and-forget delivery seam. Implementations must not
// block the request path; failures are logged, never surfaced to the
// caller.
type Mailer interface {
	Send(ctx context.Context, msg Message)
}

// LogMailer records outbound mail without delivering it. It stands in
// wherever no real mail transport is configured; the message body (and
// the code inside it) is only logged outside production.
type LogMailer struct {
	logger     *slog.Logger
	production bool
}

func NewLogMailer(logger *slog.Logger, production bool) *LogMailer {
	return &LogMailer{logger: logger, production: production}
}

func (m *LogMailer) Send(_ context.Context, msg Message) {
	if m.production {
		m.logger.Info("mail queued",
			"to", msg.To,
			"subject", msg.Subject,
		)
		return
	}

	m.logger.Info("mail queued",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
}
