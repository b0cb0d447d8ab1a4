package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-vision/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertsRepo 报警记录仓库接口
type AlertsRepo interface {
	CreateAlert(ctx context.Context, record *models.AlertRecord) error
	UpdateAlertDelivery(ctx context.Context, alertID string, channels []models.ChannelOutcome) error
}

// BroadcastPublisher 全量广播接口（由 Hub 实现）
type BroadcastPublisher interface {
	PublishToAll(event interface{})
}

// Dispatcher 报警分发器
// 先持久化 AlertRecord，再逐渠道尽力投递；单渠道失败不影响其他渠道，
// 每渠道结果记录在 AlertRecord 上。与实时广播路径解耦
type Dispatcher struct {
	threshold models.ThreatLevel
	channels  []Channel
	repo      AlertsRepo
	publisher BroadcastPublisher
	logger    *zap.Logger
}

// NewDispatcher 创建报警分发器
func NewDispatcher(
	threshold string,
	channels []Channel,
	repo AlertsRepo,
	publisher BroadcastPublisher,
	logger *zap.Logger,
) (*Dispatcher, error) {
	level, err := models.ParseThreatLevel(threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid alert threshold: %w", err)
	}
	return &Dispatcher{
		threshold: level,
		channels:  channels,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Threshold 返回报警阈值
func (d *Dispatcher) Threshold() models.ThreatLevel {
	return d.threshold
}

// Dispatch 创建并分发一条报警
// 级别未达阈值时不做任何事（返回 nil, nil）
// 持久化失败是本次报警的致命错误，但不影响其他帧/摄像头
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	cameraID string,
	level models.ThreatLevel,
	message string,
) (*models.AlertRecord, error) {
	if level < d.threshold {
		return nil, nil
	}

	now := time.Now()
	record := &models.AlertRecord{
		AlertID:      uuid.New().String(),
		CameraID:     cameraID,
		ThreatLevel:  level,
		Message:      message,
		Channels:     []models.ChannelOutcome{},
		Acknowledged: false,
		CreatedAt:    now,
	}

	// 先持久化，再尝试投递
	if err := d.repo.CreateAlert(ctx, record); err != nil {
		d.logger.Error("Failed to persist alert record",
			zap.String("camera_id", cameraID),
			zap.String("threat_level", level.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to persist alert record: %w", err)
	}

	subject := fmt.Sprintf("Security Alert - %s Threat Detected", strings.ToUpper(level.String()))
	body := buildAlertBody(cameraID, level, message, now)

	// 逐渠道独立投递：一个渠道失败不阻止尝试其他渠道
	for _, ch := range d.channels {
		outcome := models.ChannelOutcome{
			Channel: ch.Name(),
			OK:      true,
			SentAt:  time.Now(),
		}
		if err := ch.Send(ctx, subject, body); err != nil {
			outcome.OK = false
			outcome.Error = err.Error()
			d.logger.Warn("Alert channel delivery failed",
				zap.String("alert_id", record.AlertID),
				zap.String("channel", ch.Name()),
				zap.Error(err),
			)
		}
		record.Channels = append(record.Channels, outcome)
	}

	if err := d.repo.UpdateAlertDelivery(ctx, record.AlertID, record.Channels); err != nil {
		d.logger.Error("Failed to record delivery outcomes",
			zap.String("alert_id", record.AlertID),
			zap.Error(err),
		)
	}

	// 报警事件广播给所有客户端（独立于每渠道投递结果）
	d.publisher.PublishToAll(models.AlertEvent{
		Type:      models.EventTypeAlert,
		Data:      record,
		Timestamp: time.Now().Unix(),
	})

	d.logger.Info("Alert dispatched",
		zap.String("alert_id", record.AlertID),
		zap.String("camera_id", cameraID),
		zap.String("threat_level", level.String()),
		zap.Int("channel_count", len(record.Channels)),
	)
	return record, nil
}

// buildAlertBody 构建 HTML 报警正文
func buildAlertBody(cameraID string, level models.ThreatLevel, message string, at time.Time) string {
	return fmt.Sprintf(`<html>
<body>
    <h2>Security Alert</h2>
    <p><strong>Threat Level:</strong> %s</p>
    <p><strong>Camera:</strong> %s</p>
    <p><strong>Message:</strong> %s</p>
    <p><strong>Time:</strong> %s</p>
    <hr>
    <p><em>This is an automated alert from the surveillance system.</em></p>
</body>
</html>`,
		strings.ToUpper(level.String()),
		cameraID,
		message,
		at.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}
