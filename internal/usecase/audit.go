package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/domain"
)

// Meta carries request-scoped context for audit and logging.
type Meta struct {
	IPAddress     string
	UserAgent     string
	CorrelationID string
}

// recordAudit writes an audit entry best-effort. Audit must never fail the
// operation it describes; a write error is logged and dropped.
func recordAudit(ctx context.Context, audit domain.AuditLog, logger *zap.Logger,
	userID, action string, success bool, errMsg string, meta Meta) {

	entry := &domain.AuditEntry{
		ID:            uuid.NewString(),
		UserID:        userID,
		Action:        action,
		Success:       success,
		ErrorMessage:  errMsg,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		CorrelationID: meta.CorrelationID,
		CreatedAt:     time.Now(),
	}

	if err := audit.Record(ctx, entry); err != nil {
		logger.Warn("audit write failed",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
