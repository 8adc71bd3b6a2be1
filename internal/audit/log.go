package audit

import (
	"context"
	"log/slog"
)

// LogStore writes events as structured log lines. It is the sink when no
// Kafka brokers are configured.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, string(e.Type),
		"log_type", "audit",
		"event_id", e.ID,
		"document_id", e.DocumentID,
		"kind", e.Kind,
		"status", e.Status,
		"request_id", e.RequestID,
		"cycle_id", e.CycleID,
		"client_ip", e.ClientIP,
		"browser", e.Browser,
		"os", e.OS,
		"error", e.Error,
	)
	return nil
}
