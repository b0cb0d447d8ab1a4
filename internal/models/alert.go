package models

import "time"

// ChannelOutcome 单个通知渠道的投递结果（JSONB 结构）
type ChannelOutcome struct {
	Channel string    `json:"channel"` // email, sms
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// AlertRecord 报警记录（对应 alerts 表）
// 每个达到报警阈值的帧恰好创建一条；仅 acknowledged 可变更
type AlertRecord struct {
	AlertID      string           `json:"alert_id" db:"alert_id"`
	CameraID     string           `json:"camera_id" db:"camera_id"`
	ThreatLevel  ThreatLevel      `json:"threat_level" db:"threat_level"`
	Message      string           `json:"message" db:"message"`
	Channels     []ChannelOutcome `json:"channels" db:"channels"` // JSONB：每渠道投递结果
	Acknowledged bool             `json:"acknowledged" db:"acknowledged"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}
