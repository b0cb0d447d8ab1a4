package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wisefido-vision/internal/models"

	"go.uber.org/zap"
)

// Publisher 事件发布接口（由 Hub 实现）
type Publisher interface {
	PublishToCamera(cameraID string, event interface{})
}

// sourceState 单摄像头升级状态
// 状态机：Idle → Escalating → Idle（成功或失败都回到 Idle）
// 冷却以完成时间戳记录，独立于状态
type sourceState struct {
	mu             sync.Mutex
	inFlight       bool
	lastEscalation time.Time
}

// Coordinator 升级协调器
// 决定是否调用外部推理服务，并对同一摄像头的并发升级去重
type Coordinator struct {
	threshold models.ThreatLevel
	cooldown  time.Duration
	timeout   time.Duration
	reasoner  Reasoner
	publisher Publisher
	logger    *zap.Logger

	mu     sync.Mutex
	states map[string]*sourceState
}

// NewCoordinator 创建升级协调器
func NewCoordinator(
	threshold string,
	cooldown time.Duration,
	timeout time.Duration,
	reasoner Reasoner,
	publisher Publisher,
	logger *zap.Logger,
) (*Coordinator, error) {
	level, err := models.ParseThreatLevel(threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid escalation threshold: %w", err)
	}
	return &Coordinator{
		threshold: level,
		cooldown:  cooldown,
		timeout:   timeout,
		reasoner:  reasoner,
		publisher: publisher,
		logger:    logger,
		states:    make(map[string]*sourceState),
	}, nil
}

// state 获取或创建摄像头状态
func (c *Coordinator) state(cameraID string) *sourceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[cameraID]
	if !ok {
		st = &sourceState{}
		c.states[cameraID] = st
	}
	return st
}

// MaybeEscalate 按条件升级到外部推理服务
// 条件：级别达到阈值 且 该摄像头无在途升级 且 冷却已过
// 升级为尽力而为：失败只清除在途标志，不阻塞帧处理
// 返回是否实际发起了升级
func (c *Coordinator) MaybeEscalate(
	ctx context.Context,
	cameraID string,
	level models.ThreatLevel,
	reasons []string,
	personCount int,
) bool {
	if level < c.threshold {
		return false
	}
	if len(reasons) == 0 {
		return false
	}

	st := c.state(cameraID)

	st.mu.Lock()
	if st.inFlight {
		st.mu.Unlock()
		return false
	}
	if !st.lastEscalation.IsZero() && time.Since(st.lastEscalation) < c.cooldown {
		st.mu.Unlock()
		return false
	}
	st.inFlight = true
	st.mu.Unlock()

	c.logger.Info("Escalating to reasoning service",
		zap.String("camera_id", cameraID),
		zap.String("threat_level", level.String()),
		zap.Int("reason_count", len(reasons)),
	)

	// 网络调用期间不持有任何锁
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	analysis, err := c.reasoner.Analyze(callCtx, AnalysisRequest{
		CameraID:    cameraID,
		CameraName:  cameraName(cameraID),
		Reasons:     reasons,
		ThreatLevel: level,
		PersonCount: personCount,
	})
	cancel()

	// 成功或失败都回到 Idle，冷却从完成时刻计
	st.mu.Lock()
	st.inFlight = false
	st.lastEscalation = time.Now()
	st.mu.Unlock()

	if err != nil {
		c.logger.Warn("Reasoning service call failed",
			zap.String("camera_id", cameraID),
			zap.Error(err),
		)
		return true
	}

	c.publisher.PublishToCamera(cameraID, models.AnalysisEvent{
		Type:        models.EventTypeLLMAnalysis,
		CameraID:    cameraID,
		Analysis:    analysis,
		ThreatLevel: level,
		Timestamp:   time.Now().Unix(),
	})

	c.logger.Info("Analysis event published",
		zap.String("camera_id", cameraID),
		zap.String("threat_level", level.String()),
	)
	return true
}

// TimeToNext 距下一次允许升级的剩余时间（0 表示现在可升级）
func (c *Coordinator) TimeToNext(cameraID string) time.Duration {
	st := c.state(cameraID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.lastEscalation.IsZero() {
		return 0
	}
	remaining := c.cooldown - time.Since(st.lastEscalation)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// cameraName 摄像头显示名（摄像头元数据由外部系统管理，这里仅做展示名）
func cameraName(cameraID string) string {
	return fmt.Sprintf("Camera %s", cameraID)
}
