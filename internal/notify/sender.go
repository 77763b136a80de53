package notify

import "github.com/gardend/gardend/internal/logger"

// LogSender writes notifications to the log. Used when no delivery channel
// is configured.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(title, body string) {
	s.logger.Info("notification",
		logger.Field{Key: "title", Value: title},
		logger.Field{Key: "body", Value: body})
}
