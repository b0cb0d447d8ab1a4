package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"wisefido-vision/internal/hub"
	"wisefido-vision/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// FrameSink 帧入口接口（由 pipeline.Orchestrator 实现）
type FrameSink interface {
	HandleFrame(ctx context.Context, event models.FrameEvent) bool
}

// inboundMessage 入站消息（封闭集合，在连接边界解码一次）
// 类型：subscribe_camera, unsubscribe_camera, frame, ping
type inboundMessage struct {
	Type     string `json:"type"`
	CameraID string `json:"camera_id,omitempty"`
	Frame    string `json:"frame,omitempty"`
}

const writeWait = 10 * time.Second

// WSHandler WebSocket 连接处理器
// 读循环解析入站消息并分发；写循环消费客户端出站队列。
// 同一连接上的消息顺序由读循环的串行处理保证
type WSHandler struct {
	hub      *hub.Hub
	sink     FrameSink
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(h *hub.Hub, sink FrameSink, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:  h,
		sink: sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 前端与服务独立部署，来源校验交给反向代理
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP 处理 /ws 连接
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.Register()

	go h.writePump(client, conn)

	h.hub.SendTo(client, models.WelcomeEvent{
		Type:      models.EventTypeConnection,
		Status:    "connected",
		Message:   "Connected to threat detection service",
		Timestamp: time.Now().Unix(),
	})

	h.readLoop(client, conn)
}

// readLoop 串行读取并处理入站消息，连接断开时注销客户端
func (h *WSHandler) readLoop(client *hub.Client, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Ignoring malformed message",
				zap.String("client_id", client.ID),
				zap.Error(err),
			)
			continue
		}

		h.handleMessage(client, msg)
	}
}

// handleMessage 分发一条入站消息
func (h *WSHandler) handleMessage(client *hub.Client, msg inboundMessage) {
	switch msg.Type {
	case "subscribe_camera":
		if msg.CameraID == "" {
			return
		}
		h.hub.Subscribe(client, msg.CameraID)
		h.hub.SendTo(client, models.SubscriptionEvent{
			Type:     models.EventTypeSubscriptionConfirmed,
			CameraID: msg.CameraID,
		})

	case "unsubscribe_camera":
		if msg.CameraID == "" {
			return
		}
		h.hub.Unsubscribe(client, msg.CameraID)
		h.hub.SendTo(client, models.SubscriptionEvent{
			Type:     models.EventTypeUnsubscriptionConfirmed,
			CameraID: msg.CameraID,
		})

	case "frame":
		if msg.CameraID == "" || msg.Frame == "" {
			return
		}
		h.sink.HandleFrame(context.Background(), models.FrameEvent{
			CameraID:  msg.CameraID,
			Frame:     msg.Frame,
			ArrivedAt: time.Now(),
		})

	case "ping":
		h.hub.SendTo(client, models.PongEvent{
			Type:      models.EventTypePong,
			Timestamp: time.Now().Unix(),
		})

	default:
		h.logger.Debug("Ignoring unknown message type",
			zap.String("client_id", client.ID),
			zap.String("type", msg.Type),
		)
	}
}

// writePump 消费出站队列写入连接，Done 信号或写失败时退出
func (h *WSHandler) writePump(client *hub.Client, conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case data := <-client.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.Unregister(client)
				return
			}
		case <-client.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
