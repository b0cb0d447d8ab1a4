package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-vision/internal/models"
	"wisefido-vision/internal/repository"

	"go.uber.org/zap"
)

// AlertsStore 报警记录存取接口（由 repository.AlertsRepository 实现）
type AlertsStore interface {
	GetAlert(ctx context.Context, alertID string) (*models.AlertRecord, error)
	ListAlerts(ctx context.Context, filters repository.AlertFilters, page, size int) ([]*models.AlertRecord, int, error)
	AcknowledgeAlert(ctx context.Context, alertID string) error
}

// FramesStore 检测帧存取接口（由 repository.FramesRepository 实现）
type FramesStore interface {
	ListRecentFrames(ctx context.Context, cameraID string, limit int) ([]*models.DetectionFrame, error)
}

// SnapshotStore 实时快照存取接口（由 cache.RealtimeCache 实现）
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, cameraID string) (*models.RealtimeSnapshot, error)
}

// AlertService 报警查询服务
type AlertService struct {
	alertsStore AlertsStore
	framesStore FramesStore
	snapshots   SnapshotStore
	logger      *zap.Logger
}

// NewAlertService 创建报警查询服务
func NewAlertService(alertsStore AlertsStore, framesStore FramesStore, snapshots SnapshotStore, logger *zap.Logger) *AlertService {
	return &AlertService{
		alertsStore: alertsStore,
		framesStore: framesStore,
		snapshots:   snapshots,
		logger:      logger,
	}
}

// ListAlertsRequest 查询报警列表请求
type ListAlertsRequest struct {
	CameraID     string
	ThreatLevel  string
	Acknowledged *bool
	StartTime    *time.Time
	EndTime      *time.Time
	Page         int
	Size         int
}

// ListAlertsResponse 查询报警列表响应
type ListAlertsResponse struct {
	Items []*models.AlertRecord `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Size  int                   `json:"size"`
}

// ListAlerts 查询报警列表
func (s *AlertService) ListAlerts(ctx context.Context, req ListAlertsRequest) (*ListAlertsResponse, error) {
	// 参数验证
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 {
		req.Size = 20
	}
	if req.Size > 100 {
		req.Size = 100
	}

	// 构建过滤器
	filters := repository.AlertFilters{
		Acknowledged: req.Acknowledged,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	}
	if cameraID := strings.TrimSpace(req.CameraID); cameraID != "" {
		filters.CameraID = &cameraID
	}
	if levelName := strings.TrimSpace(req.ThreatLevel); levelName != "" {
		// 非法级别直接拒绝，避免下发必然为空的查询
		if _, err := models.ParseThreatLevel(levelName); err != nil {
			return nil, fmt.Errorf("invalid threat_level filter: %w", err)
		}
		filters.ThreatLevel = &levelName
	}

	records, total, err := s.alertsStore.ListAlerts(ctx, filters, req.Page, req.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	if records == nil {
		records = []*models.AlertRecord{}
	}

	return &ListAlertsResponse{
		Items: records,
		Total: total,
		Page:  req.Page,
		Size:  req.Size,
	}, nil
}

// GetAlert 查询单条报警
func (s *AlertService) GetAlert(ctx context.Context, alertID string) (*models.AlertRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	record, err := s.alertsStore.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	return record, nil
}

// AcknowledgeAlert 确认报警（只有未确认的报警可确认）
func (s *AlertService) AcknowledgeAlert(ctx context.Context, alertID string) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	if err := s.alertsStore.AcknowledgeAlert(ctx, alertID); err != nil {
		return err
	}

	s.logger.Info("Alert acknowledged", zap.String("alert_id", alertID))
	return nil
}

// ListRecentFrames 查询摄像头最近的检测帧
func (s *AlertService) ListRecentFrames(ctx context.Context, cameraID string, limit int) ([]*models.DetectionFrame, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("camera_id is required")
	}

	frames, err := s.framesStore.ListRecentFrames(ctx, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent frames: %w", err)
	}
	if frames == nil {
		frames = []*models.DetectionFrame{}
	}

	return frames, nil
}

// GetRealtimeSnapshot 查询摄像头实时检测快照
func (s *AlertService) GetRealtimeSnapshot(ctx context.Context, cameraID string) (*models.RealtimeSnapshot, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("camera_id is required")
	}

	return s.snapshots.GetSnapshot(ctx, cameraID)
}
