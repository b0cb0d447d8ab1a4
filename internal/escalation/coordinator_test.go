package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-vision/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeReasoner 可控的推理服务替身
type fakeReasoner struct {
	mu       sync.Mutex
	calls    int
	analysis string
	err      error
	block    chan struct{} // 非 nil 时 Analyze 阻塞直到该通道关闭
}

func (f *fakeReasoner) Analyze(ctx context.Context, req AnalysisRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.analysis, f.err
}

func (f *fakeReasoner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePublisher 记录发布的事件
type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (f *fakePublisher) PublishToCamera(cameraID string, event interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) published() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.events...)
}

func newTestCoordinator(t *testing.T, reasoner Reasoner, pub Publisher, cooldown time.Duration) *Coordinator {
	c, err := NewCoordinator("medium", cooldown, time.Second, reasoner, pub, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestMaybeEscalate_BelowThreshold(t *testing.T) {
	reasoner := &fakeReasoner{analysis: "ok"}
	pub := &fakePublisher{}
	c := newTestCoordinator(t, reasoner, pub, time.Minute)

	escalated := c.MaybeEscalate(context.Background(), "cam-1", models.ThreatLow, []string{"person detected"}, 1)

	assert.False(t, escalated)
	assert.Equal(t, 0, reasoner.callCount())
}

func TestMaybeEscalate_SuccessPublishesAnalysis(t *testing.T) {
	reasoner := &fakeReasoner{analysis: "suspicious scene"}
	pub := &fakePublisher{}
	c := newTestCoordinator(t, reasoner, pub, time.Minute)

	escalated := c.MaybeEscalate(context.Background(), "cam-1", models.ThreatHigh, []string{"WEAPON DETECTED: knife (80%)"}, 1)

	assert.True(t, escalated)
	events := pub.published()
	require.Len(t, events, 1)
	event, ok := events[0].(models.AnalysisEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventTypeLLMAnalysis, event.Type)
	assert.Equal(t, "cam-1", event.CameraID)
	assert.Equal(t, "suspicious scene", event.Analysis)
	assert.Equal(t, models.ThreatHigh, event.ThreatLevel)
}

func TestMaybeEscalate_CooldownLimitsToOnePerWindow(t *testing.T) {
	reasoner := &fakeReasoner{analysis: "ok"}
	pub := &fakePublisher{}
	c := newTestCoordinator(t, reasoner, pub, 200*time.Millisecond)

	reasons := []string{"WEAPON DETECTED: knife (80%)"}

	assert.True(t, c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1))
	// 冷却窗口内的后续帧不再升级
	assert.False(t, c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1))
	assert.False(t, c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1))
	assert.Equal(t, 1, reasoner.callCount())

	// 冷却过后可再次升级
	time.Sleep(250 * time.Millisecond)
	assert.True(t, c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1))
	assert.Equal(t, 2, reasoner.callCount())
}

func TestMaybeEscalate_FailureClearsInFlight(t *testing.T) {
	reasoner := &fakeReasoner{err: errors.New("service down")}
	pub := &fakePublisher{}
	c := newTestCoordinator(t, reasoner, pub, 50*time.Millisecond)

	reasons := []string{"WEAPON DETECTED: gun (90%)"}

	assert.True(t, c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1))
	assert.Empty(t, pub.published())

	// 失败清除在途标志：冷却过后可再升级
	time.Sleep(80 * time.Millisecond)
	assert.True(t, c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1))
	assert.Equal(t, 2, reasoner.callCount())
}

func TestMaybeEscalate_ConcurrentDeduplication(t *testing.T) {
	block := make(chan struct{})
	reasoner := &fakeReasoner{analysis: "ok", block: block}
	pub := &fakePublisher{}
	c := newTestCoordinator(t, reasoner, pub, time.Minute)

	reasons := []string{"WEAPON DETECTED: knife (80%)"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1)
	}()

	// 等待第一个升级进入在途状态
	require.Eventually(t, func() bool {
		return reasoner.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	// 在途期间同摄像头的升级被去重
	assert.False(t, c.MaybeEscalate(context.Background(), "cam-1", models.ThreatCritical, reasons, 1))

	// 其他摄像头不受影响
	done := make(chan struct{})
	go func() {
		c.MaybeEscalate(context.Background(), "cam-2", models.ThreatCritical, reasons, 1)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return reasoner.callCount() == 2
	}, time.Second, 5*time.Millisecond)

	close(block)
	wg.Wait()
	<-done
	assert.Equal(t, 2, reasoner.callCount())
}

func TestTimeToNext(t *testing.T) {
	reasoner := &fakeReasoner{analysis: "ok"}
	pub := &fakePublisher{}
	c := newTestCoordinator(t, reasoner, pub, time.Minute)

	assert.Equal(t, time.Duration(0), c.TimeToNext("cam-1"))

	c.MaybeEscalate(context.Background(), "cam-1", models.ThreatHigh, []string{"reason"}, 1)

	remaining := c.TimeToNext("cam-1")
	assert.Greater(t, remaining, 50*time.Second)
}
