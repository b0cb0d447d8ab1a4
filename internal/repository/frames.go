package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-vision/internal/models"

	"go.uber.org/zap"
)

// FramesRepository 检测帧仓库（仅持久化达到 notable 级别的帧）
type FramesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFramesRepository 创建检测帧仓库
func NewFramesRepository(db *sql.DB, logger *zap.Logger) *FramesRepository {
	return &FramesRepository{
		db:     db,
		logger: logger,
	}
}

// CreateDetectionFrame 创建检测帧记录
func (r *FramesRepository) CreateDetectionFrame(ctx context.Context, frame *models.DetectionFrame) error {
	if frame == nil {
		return fmt.Errorf("frame is required")
	}
	if frame.FrameID == "" {
		return fmt.Errorf("frame_id is required")
	}
	if frame.CameraID == "" {
		return fmt.Errorf("camera_id is required")
	}

	alertsJSON, err := json.Marshal(frame.Alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	query := `
		INSERT INTO detection_frames (
			frame_id,
			camera_id,
			threat_level,
			alerts,
			person_count,
			detected_at,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		frame.FrameID,
		frame.CameraID,
		frame.ThreatLevel.String(),
		alertsJSON,
		frame.PersonCount,
		frame.DetectedAt,
		frame.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create detection frame: %w", err)
	}

	return nil
}

// ListRecentFrames 查询摄像头最近的检测帧（按 detected_at 倒序）
func (r *FramesRepository) ListRecentFrames(ctx context.Context, cameraID string, limit int) ([]*models.DetectionFrame, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("camera_id is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT
			frame_id,
			camera_id,
			threat_level,
			alerts,
			person_count,
			detected_at,
			created_at
		FROM detection_frames
		WHERE camera_id = $1
		ORDER BY detected_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list detection frames: %w", err)
	}
	defer rows.Close()

	var frames []*models.DetectionFrame
	for rows.Next() {
		var frame models.DetectionFrame
		var levelStr string
		var alertsJSON []byte

		err := rows.Scan(
			&frame.FrameID,
			&frame.CameraID,
			&levelStr,
			&alertsJSON,
			&frame.PersonCount,
			&frame.DetectedAt,
			&frame.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection frame: %w", err)
		}

		level, err := models.ParseThreatLevel(levelStr)
		if err != nil {
			return nil, fmt.Errorf("invalid threat level in database: %w", err)
		}
		frame.ThreatLevel = level

		if len(alertsJSON) > 0 {
			if err := json.Unmarshal(alertsJSON, &frame.Alerts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal alerts: %w", err)
			}
		}

		frames = append(frames, &frame)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detection frames: %w", err)
	}

	return frames, nil
}

// DeleteFramesBefore 删除早于截止时间的检测帧（保留清理用），返回删除条数
func (r *FramesRepository) DeleteFramesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM detection_frames WHERE detected_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete detection frames: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return deleted, nil
}

// CountFramesByLevel 统计时间区间内各威胁级别的检测帧数量（日报用）
func (r *FramesRepository) CountFramesByLevel(ctx context.Context, start, end time.Time) (map[string]int, error) {
	query := `
		SELECT threat_level, COUNT(*)
		FROM detection_frames
		WHERE detected_at >= $1 AND detected_at < $2
		GROUP BY threat_level
	`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count frames by level: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan frame count: %w", err)
		}
		counts[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate frame counts: %w", err)
	}

	return counts, nil
}
