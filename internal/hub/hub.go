package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client 一个活跃的客户端连接
// 只拥有自己的出站发送队列；生命周期由连接边界创建、Hub 查找
type Client struct {
	ID   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

// newClient 创建客户端（出站队列带缓冲）
func newClient(bufferSize int) *Client {
	return &Client{
		ID:   uuid.New().String(),
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

// Outbound 返回出站消息队列（供连接写循环消费）
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done 返回关闭信号通道（供连接写循环退出）
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// close 标记客户端关闭（幂等）
// 不关闭 send 通道：并发发布者可能仍持有快照引用
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// trySend 非阻塞投递一条消息
// 队列已满或客户端已关闭均视为发送失败
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Hub 订阅注册表与广播器
// 双向索引（客户端→摄像头、摄像头→客户端）在同一把锁下原子更新，
// 保证两个方向永不失配；发布时先快照订阅者集合再在锁外发送
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]map[string]struct{}
	subs    map[string]map[*Client]struct{}
}

// NewHub 创建 Hub（服务启动时构造，服务停止时 Shutdown）
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]map[string]struct{}),
		subs:    make(map[string]map[*Client]struct{}),
	}
}

// 每客户端出站队列长度
const defaultSendBuffer = 64

// Register 注册一个新连接
func (h *Hub) Register() *Client {
	client := newClient(defaultSendBuffer)

	h.mu.Lock()
	h.clients[client] = make(map[string]struct{})
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.Int("total_connections", total),
	)
	return client
}

// Unregister 移除连接及其全部订阅（幂等，恰好移除一次）
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	cameras, ok := h.clients[client]
	if !ok {
		h.mu.Unlock()
		return
	}
	for cameraID := range cameras {
		if set, exists := h.subs[cameraID]; exists {
			delete(set, client)
			if len(set) == 0 {
				delete(h.subs, cameraID)
			}
		}
	}
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	client.close()

	h.logger.Info("WebSocket client disconnected",
		zap.String("client_id", client.ID),
		zap.Int("total_connections", total),
	)
}

// Subscribe 订阅摄像头（幂等：重复订阅只有一条订阅关系）
func (h *Hub) Subscribe(client *Client, cameraID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cameras, ok := h.clients[client]
	if !ok {
		return // 已断开的连接不再接受订阅
	}
	cameras[cameraID] = struct{}{}

	if _, exists := h.subs[cameraID]; !exists {
		h.subs[cameraID] = make(map[*Client]struct{})
	}
	h.subs[cameraID][client] = struct{}{}
}

// Unsubscribe 退订摄像头（退订非订阅者为 no-op）
func (h *Hub) Unsubscribe(client *Client, cameraID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cameras, ok := h.clients[client]; ok {
		delete(cameras, cameraID)
	}
	if set, exists := h.subs[cameraID]; exists {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subs, cameraID)
		}
	}
}

// PublishToCamera 向订阅指定摄像头的所有客户端发布事件
// 对发布时刻的订阅者快照迭代；单个连接发送失败触发其移除，
// 但不中断对其余连接的投递
func (h *Hub) PublishToCamera(cameraID string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event",
			zap.String("camera_id", cameraID),
			zap.Error(err),
		)
		return
	}

	h.mu.RLock()
	set, exists := h.subs[cameraID]
	if !exists || len(set) == 0 {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*Client, 0, len(set))
	for client := range set {
		snapshot = append(snapshot, client)
	}
	h.mu.RUnlock()

	h.deliver(snapshot, data)
}

// PublishToAll 向所有客户端广播事件
func (h *Hub) PublishToAll(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast event", zap.Error(err))
		return
	}

	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mu.RUnlock()

	h.deliver(snapshot, data)
}

// SendTo 向单个客户端发送事件（欢迎、确认、pong）
func (h *Hub) SendTo(client *Client, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal personal event",
			zap.String("client_id", client.ID),
			zap.Error(err),
		)
		return
	}
	if !client.trySend(data) {
		h.Unregister(client)
	}
}

// deliver 在锁外向快照内每个客户端投递，失败者视为隐式断开
func (h *Hub) deliver(snapshot []*Client, data []byte) {
	var failed []*Client
	for _, client := range snapshot {
		if !client.trySend(data) {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		h.logger.Warn("Send failed, removing client",
			zap.String("client_id", client.ID),
		)
		h.Unregister(client)
	}
}

// ConnectionCount 当前连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount 指定摄像头的订阅者数量
func (h *Hub) SubscriberCount(cameraID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[cameraID])
}

// Subscriptions 返回客户端当前订阅的摄像头列表（测试与诊断用）
func (h *Hub) Subscriptions(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cameras, ok := h.clients[client]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cameras))
	for cameraID := range cameras {
		out = append(out, cameraID)
	}
	return out
}

// Shutdown 关闭所有连接（服务停止时调用）
func (h *Hub) Shutdown() {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mu.Unlock()

	for _, client := range snapshot {
		h.Unregister(client)
	}
}
