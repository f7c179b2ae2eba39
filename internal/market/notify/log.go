package notify

import (
	"context"

	"github.com/songzhibin97/qwork/pkg/log"
)

// LogNotifier writes messages to the log instead of sending them
type LogNotifier struct {
	logger log.Logger
}

// NewLogNotifier creates a notifier that logs every message at info level
func NewLogNotifier(logger log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.NewNop()
	}
	return &LogNotifier{logger: logger.With(log.Component("notify"))}
}

// Send implements Notifier
func (n *LogNotifier) Send(ctx context.Context, msg *Message) error {
	n.logger.WithContext(ctx).Info("Email",
		log.String(log.FieldEmail, msg.To),
		log.String("subject", msg.Subject),
		log.String("body", msg.Body),
	)
	return nil
}
