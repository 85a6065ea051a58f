package enrolment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/internal/platform/gateway"
	"github.com/lendlib/membership/pkg/logctx"
	"github.com/lendlib/membership/pkg/tool"
)

// auditReceived records the arrival of a gateway notification. Saved
// asynchronously; audit failures are logged, never surfaced.
func (e *Engine) auditReceived(ctx context.Context, remote *gateway.RemoteStatus) {
	e.saveAudit(ctx, remote, models.EnrolmentLogStatusReceived, nil)
}

// auditHandled records the outcome of processing a gateway notification.
func (e *Engine) auditHandled(ctx context.Context, remote *gateway.RemoteStatus, resErr error) {
	var result *datatypes.JSON
	if resErr != nil {
		b, _ := json.Marshal(map[string]string{"error": resErr.Error()})
		j := datatypes.JSON(b)
		result = &j
	}
	status := models.EnrolmentLogStatusHandled
	if resErr != nil {
		status = models.EnrolmentLogStatusHandleFailed
	}
	e.saveAudit(ctx, remote, status, result)
}

func (e *Engine) saveAudit(ctx context.Context, remote *gateway.RemoteStatus, status models.EnrolmentLogStatus, result *datatypes.JSON) {
	data, _ := json.Marshal(remote)
	var traceID string
	if tid, ok := ctx.Value(logctx.TraceIDKey).(string); ok {
		traceID = tid
	}
	row := &models.EnrolmentLog{
		ID:               tool.GenerateUUIDV7(),
		OrderID:          remote.Metadata.OrderID,
		UserID:           lo.Ternary(remote.Metadata.UserID != "", lo.ToPtr(remote.Metadata.UserID), nil),
		TraceID:          traceID,
		GatewayPaymentID: remote.ID,
		NotificationTime: time.Now(),
		Data:             datatypes.JSON(data),
		Result:           result,
		Status:           status,
	}
	go func() {
		if err := e.db.Save(row).Error; err != nil {
			e.log.Errorf("failed to save enrolment log: %v", err)
		}
	}()
}
