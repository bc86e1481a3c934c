package infra

import (
	"context"

	"github.com/fd1az/crossarb/business/arbitrage/app"
	"github.com/fd1az/crossarb/internal/logger"
)

// LogAlerter turns alerts into log records tagged alert=true, for a log
// pipeline to route to operators.
type LogAlerter struct {
	logger logger.LoggerInterface
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(log logger.LoggerInterface) *LogAlerter {
	return &LogAlerter{logger: log}
}

// Alert writes the alert. High priority alerts are logged at error level.
func (a *LogAlerter) Alert(ctx context.Context, priority app.Priority, title, message string) {
	args := []any{"alert", true, "priority", priority.String(), "title", title, "message", message}
	if priority == app.PriorityHigh {
		a.logger.Errorc(ctx, 4, "operator alert", args...)
		return
	}
	a.logger.Warnc(ctx, 4, "operator alert", args...)
}
