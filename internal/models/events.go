package models

// WebSocket 出站事件（封闭集合，每种消息一个变体）
// 事件在发布时即为完整不可变消息，Broadcaster 不做任何转换

// 事件类型常量
const (
	EventTypeConnection              = "connection"
	EventTypeDetection               = "detection"
	EventTypeAlert                   = "alert"
	EventTypeLLMAnalysis             = "llm_analysis"
	EventTypeCameraStatus            = "camera_status"
	EventTypeSubscriptionConfirmed   = "subscription_confirmed"
	EventTypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	EventTypePong                    = "pong"
)

// WelcomeEvent 连接建立欢迎消息
type WelcomeEvent struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// DetectionEvent 检测结果事件（发给订阅该摄像头的客户端）
type DetectionEvent struct {
	Type        string      `json:"type"`
	CameraID    string      `json:"camera_id"`
	Detections  []Detection `json:"detections"`
	Alerts      []string    `json:"alerts"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	Timestamp   int64       `json:"timestamp"`
}

// AnalysisEvent LLM 上下文分析事件
type AnalysisEvent struct {
	Type        string      `json:"type"`
	CameraID    string      `json:"camera_id"`
	Analysis    string      `json:"analysis"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	Timestamp   int64       `json:"timestamp"`
}

// AlertEvent 报警事件（广播给所有客户端）
type AlertEvent struct {
	Type      string       `json:"type"`
	Data      *AlertRecord `json:"data"`
	Timestamp int64        `json:"timestamp"`
}

// CameraStatusEvent 摄像头状态事件
type CameraStatusEvent struct {
	Type      string `json:"type"`
	CameraID  string `json:"camera_id"`
	Status    string `json:"status"` // online, offline
	Timestamp int64  `json:"timestamp"`
}

// SubscriptionEvent 订阅/退订确认事件
type SubscriptionEvent struct {
	Type     string `json:"type"`
	CameraID string `json:"camera_id"`
}

// PongEvent 心跳响应事件
type PongEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
