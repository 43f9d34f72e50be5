package provider

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogGateway logs messages instead of sending them (for development).
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, msg Message) (*SendResult, error) {
	id := uuid.New().String()
	g.logger.Info("logging restock email (development mode)",
		zap.String("message_id", id),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Any("data", msg.Data),
	)
	return &SendResult{MessageID: id}, nil
}

var _ Gateway = (*LogGateway)(nil)
