package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"

	"go.uber.org/zap"
)

// StatusBroadcaster 摄像头状态广播接口（由 Hub 实现）
type StatusBroadcaster interface {
	PublishToAll(event interface{})
}

// statusSubscriber 订阅端最小接口（生产实现为 MQTTClient，测试注入替身）
type statusSubscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// statusMessage 摄像头状态消息载荷
type statusMessage struct {
	Status string `json:"status"` // online, offline
}

// CameraStatusConsumer 摄像头状态消费者
// 订阅 cameras/+/status，将上下线消息广播给所有 WebSocket 客户端
type CameraStatusConsumer struct {
	config      *config.Config
	mqttClient  statusSubscriber
	broadcaster StatusBroadcaster
	logger      *zap.Logger
}

// NewCameraStatusConsumer 创建摄像头状态消费者
func NewCameraStatusConsumer(
	cfg *config.Config,
	mqttClient statusSubscriber,
	broadcaster StatusBroadcaster,
	logger *zap.Logger,
) *CameraStatusConsumer {
	return &CameraStatusConsumer{
		config:      cfg,
		mqttClient:  mqttClient,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Start 启动消费者
func (c *CameraStatusConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.MQTT.StatusTopic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to status topic: %w", err)
	}

	c.logger.Info("Camera status consumer started",
		zap.String("topic", c.config.MQTT.StatusTopic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *CameraStatusConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.MQTT.StatusTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Camera status consumer stopped")
	return nil
}

// handleMessage 处理摄像头状态消息
func (c *CameraStatusConsumer) handleMessage(topic string, payload []byte) error {
	// 主题格式: cameras/{camera_id}/status
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	cameraID := parts[1]

	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal status message: %w", err)
	}
	if msg.Status != "online" && msg.Status != "offline" {
		return fmt.Errorf("invalid camera status: %s", msg.Status)
	}

	c.broadcaster.PublishToAll(models.CameraStatusEvent{
		Type:      models.EventTypeCameraStatus,
		CameraID:  cameraID,
		Status:    msg.Status,
		Timestamp: time.Now().Unix(),
	})

	c.logger.Info("Camera status broadcast",
		zap.String("camera_id", cameraID),
		zap.String("status", msg.Status),
	)

	return nil
}
