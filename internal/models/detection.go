package models

import "time"

// Detection 单个目标检测结果（来自分类器服务）
type Detection struct {
	Class      string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

// FrameEvent 一帧待处理数据（仅存在于一次流水线处理期间，不落库）
type FrameEvent struct {
	CameraID  string    // 摄像头ID
	Frame     string    // base64 编码图像（data URL）
	ArrivedAt time.Time // 到达时间
}

// DetectionFrame 检测帧记录（对应 detection_frames 表，仅持久化达到 notable 级别的帧）
type DetectionFrame struct {
	FrameID     string      `json:"frame_id" db:"frame_id"`
	CameraID    string      `json:"camera_id" db:"camera_id"`
	ThreatLevel ThreatLevel `json:"threat_level" db:"threat_level"`
	Alerts      []string    `json:"alerts" db:"alerts"` // JSONB：报警原因列表
	PersonCount int         `json:"person_count" db:"person_count"`
	DetectedAt  time.Time   `json:"detected_at" db:"detected_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// RealtimeSnapshot 摄像头实时检测快照（Redis 缓存结构）
type RealtimeSnapshot struct {
	CameraID    string      `json:"camera_id"`
	Detections  []Detection `json:"detections"`
	Alerts      []string    `json:"alerts"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	PersonCount int         `json:"person_count"`
	Timestamp   int64       `json:"timestamp"`
}
