package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-vision/internal/models"

	"go.uber.org/zap"
)

// AlertsRepository 报警记录仓库
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建报警记录仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertFilters 报警记录过滤条件
type AlertFilters struct {
	CameraID     *string    // 摄像头过滤
	ThreatLevel  *string    // 威胁级别过滤
	Acknowledged *bool      // 确认状态过滤
	StartTime    *time.Time // created_at >= StartTime
	EndTime      *time.Time // created_at <= EndTime
}

// CreateAlert 创建报警记录
func (r *AlertsRepository) CreateAlert(ctx context.Context, record *models.AlertRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if record.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if record.CameraID == "" {
		return fmt.Errorf("camera_id is required")
	}

	channelsJSON, err := json.Marshal(record.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	query := `
		INSERT INTO alerts (
			alert_id,
			camera_id,
			threat_level,
			message,
			channels,
			acknowledged,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.AlertID,
		record.CameraID,
		record.ThreatLevel.String(),
		record.Message,
		channelsJSON,
		record.Acknowledged,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// UpdateAlertDelivery 回写每渠道投递结果
func (r *AlertsRepository) UpdateAlertDelivery(ctx context.Context, alertID string, channels []models.ChannelOutcome) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	query := `UPDATE alerts SET channels = $1 WHERE alert_id = $2`

	result, err := r.db.ExecContext(ctx, query, channelsJSON, alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert not found: alert_id=%s", alertID)
	}

	return nil
}

// GetAlert 根据 alert_id 获取单条报警记录
func (r *AlertsRepository) GetAlert(ctx context.Context, alertID string) (*models.AlertRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT
			alert_id,
			camera_id,
			threat_level,
			message,
			channels,
			acknowledged,
			created_at
		FROM alerts
		WHERE alert_id = $1
	`

	record, err := r.scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: alert_id=%s", alertID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return record, nil
}

// ListAlerts 查询报警记录列表（支持过滤和分页，按 created_at 倒序）
func (r *AlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters, page, size int) ([]*models.AlertRecord, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	where, args := buildAlertWhere(filters)

	// 总数
	countQuery := "SELECT COUNT(*) FROM alerts" + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	// 分页数据
	query := fmt.Sprintf(`
		SELECT
			alert_id,
			camera_id,
			threat_level,
			message,
			channels,
			acknowledged,
			created_at
		FROM alerts%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var records []*models.AlertRecord
	for rows.Next() {
		record, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return records, total, nil
}

// AcknowledgeAlert 确认报警（仅未确认的报警可确认）
func (r *AlertsRepository) AcknowledgeAlert(ctx context.Context, alertID string) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `UPDATE alerts SET acknowledged = TRUE WHERE alert_id = $1 AND acknowledged = FALSE`

	result, err := r.db.ExecContext(ctx, query, alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert not found or already acknowledged: alert_id=%s", alertID)
	}

	return nil
}

// CountAlertsByLevel 统计时间区间内各威胁级别的报警数量（日报用）
func (r *AlertsRepository) CountAlertsByLevel(ctx context.Context, start, end time.Time) (map[string]int, error) {
	query := `
		SELECT threat_level, COUNT(*)
		FROM alerts
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY threat_level
	`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by level: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert counts: %w", err)
	}

	return counts, nil
}

// CountAlertsByCamera 统计时间区间内各摄像头的报警数量（日报用）
func (r *AlertsRepository) CountAlertsByCamera(ctx context.Context, start, end time.Time) (map[string]int, error) {
	query := `
		SELECT camera_id, COUNT(*)
		FROM alerts
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY camera_id
	`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by camera: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cameraID string
		var count int
		if err := rows.Scan(&cameraID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan camera count: %w", err)
		}
		counts[cameraID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate camera counts: %w", err)
	}

	return counts, nil
}

// scanner 行扫描接口（QueryRow 和 Rows 通用）
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanAlert 扫描单行报警记录
func (r *AlertsRepository) scanAlert(row scanner) (*models.AlertRecord, error) {
	var record models.AlertRecord
	var levelStr string
	var channelsJSON []byte

	err := row.Scan(
		&record.AlertID,
		&record.CameraID,
		&levelStr,
		&record.Message,
		&channelsJSON,
		&record.Acknowledged,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	level, err := models.ParseThreatLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid threat level in database: %w", err)
	}
	record.ThreatLevel = level

	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &record.Channels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
		}
	}

	return &record, nil
}

// buildAlertWhere 构建过滤条件 WHERE 子句
func buildAlertWhere(filters AlertFilters) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	addCondition := func(expr string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	if filters.CameraID != nil {
		addCondition("camera_id = $%d", *filters.CameraID)
	}
	if filters.ThreatLevel != nil {
		addCondition("threat_level = $%d", *filters.ThreatLevel)
	}
	if filters.Acknowledged != nil {
		addCondition("acknowledged = $%d", *filters.Acknowledged)
	}
	if filters.StartTime != nil {
		addCondition("created_at >= $%d", *filters.StartTime)
	}
	if filters.EndTime != nil {
		addCondition("created_at <= $%d", *filters.EndTime)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
