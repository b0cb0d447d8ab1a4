package admission

import (
	"sync"
	"time"
)

// Controller 帧准入控制器（按摄像头限制处理帧率）
// 纯节流器而非队列：被拒绝的帧直接丢弃，过期视频帧没有价值
type Controller struct {
	minInterval time.Duration

	mu           sync.Mutex
	lastAdmitted map[string]time.Time
}

// NewController 创建准入控制器
// targetFPS <= 0 时不做节流（全部放行）
func NewController(targetFPS int) *Controller {
	var interval time.Duration
	if targetFPS > 0 {
		interval = time.Second / time.Duration(targetFPS)
	}
	return &Controller{
		minInterval:  interval,
		lastAdmitted: make(map[string]time.Time),
	}
}

// Allow 判断该摄像头的一帧是否可进入流水线
// 准入条件：now - last_admitted >= min_interval；准入时更新时间戳
func (c *Controller) Allow(cameraID string, now time.Time) bool {
	if c.minInterval <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastAdmitted[cameraID]
	if ok && now.Sub(last) < c.minInterval {
		return false
	}
	// 时间戳单调不减：乱序的旧帧不回退已记录时间
	if !ok || now.After(last) {
		c.lastAdmitted[cameraID] = now
	}
	return true
}

// MinInterval 返回最小准入间隔
func (c *Controller) MinInterval() time.Duration {
	return c.minInterval
}

// LastAdmitted 返回某摄像头最后一次准入时间（用于健康上报）
func (c *Controller) LastAdmitted(cameraID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastAdmitted[cameraID]
	return t, ok
}
