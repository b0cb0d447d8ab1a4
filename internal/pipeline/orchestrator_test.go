package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-vision/internal/admission"
	"wisefido-vision/internal/detector"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/threat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClassifier 可控的分类器替身
type fakeClassifier struct {
	mu     sync.Mutex
	calls  int
	result *detector.Result
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, cameraID, frame string) (*detector.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type escalateCall struct {
	cameraID string
	level    models.ThreatLevel
	reasons  []string
}

type fakeEscalator struct {
	mu    sync.Mutex
	calls []escalateCall
}

func (f *fakeEscalator) MaybeEscalate(ctx context.Context, cameraID string, level models.ThreatLevel, reasons []string, personCount int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, escalateCall{cameraID: cameraID, level: level, reasons: reasons})
	return true
}

func (f *fakeEscalator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type dispatchCall struct {
	cameraID string
	level    models.ThreatLevel
	message  string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, cameraID string, level models.ThreatLevel, message string) (*models.AlertRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{cameraID: cameraID, level: level, message: message})
	return nil, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) lastCall() dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeFramesRepo struct {
	mu     sync.Mutex
	frames []*models.DetectionFrame
	err    error
}

func (f *fakeFramesRepo) CreateDetectionFrame(ctx context.Context, frame *models.DetectionFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeFramesRepo) stored() []*models.DetectionFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.DetectionFrame(nil), f.frames...)
}

type fakeSnapshotCache struct {
	mu        sync.Mutex
	snapshots []*models.RealtimeSnapshot
	err       error
}

func (f *fakeSnapshotCache) SetSnapshot(ctx context.Context, snapshot *models.RealtimeSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakeSnapshotCache) stored() []*models.RealtimeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.RealtimeSnapshot(nil), f.snapshots...)
}

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (f *fakeEventPublisher) PublishToCamera(cameraID string, event interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEventPublisher) published() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.events...)
}

type pipelineFakes struct {
	classifier *fakeClassifier
	escalator  *fakeEscalator
	dispatcher *fakeDispatcher
	frames     *fakeFramesRepo
	cache      *fakeSnapshotCache
	publisher  *fakeEventPublisher
}

func newTestOrchestrator(t *testing.T, targetFPS int, classifier *fakeClassifier) (*Orchestrator, *pipelineFakes) {
	aggregator, err := threat.NewAggregator(map[string]string{
		"person": "low",
		"knife":  "critical",
	}, 5)
	require.NoError(t, err)

	fakes := &pipelineFakes{
		classifier: classifier,
		escalator:  &fakeEscalator{},
		dispatcher: &fakeDispatcher{},
		frames:     &fakeFramesRepo{},
		cache:      &fakeSnapshotCache{},
		publisher:  &fakeEventPublisher{},
	}

	o, err := NewOrchestrator(
		admission.NewController(targetFPS),
		fakes.classifier,
		aggregator,
		fakes.escalator,
		fakes.dispatcher,
		fakes.frames,
		fakes.cache,
		fakes.publisher,
		"low",
		zap.NewNop(),
	)
	require.NoError(t, err)

	return o, fakes
}

func TestHandleFrame_NotableFrameFullPath(t *testing.T) {
	classifier := &fakeClassifier{
		result: &detector.Result{
			Detections: []models.Detection{
				{Class: "knife", Confidence: 0.8, BBox: []float64{1, 2, 3, 4}},
			},
			PersonCount: 0,
		},
	}
	o, fakes := newTestOrchestrator(t, 0, classifier)

	admitted := o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID:  "cam-1",
		Frame:     "base64-frame",
		ArrivedAt: time.Now(),
	})

	require.True(t, admitted)

	frames := fakes.frames.stored()
	require.Len(t, frames, 1)
	assert.Equal(t, "cam-1", frames[0].CameraID)
	assert.Equal(t, models.ThreatCritical, frames[0].ThreatLevel)
	assert.NotEmpty(t, frames[0].FrameID)

	snapshots := fakes.cache.stored()
	require.Len(t, snapshots, 1)
	assert.Equal(t, models.ThreatCritical, snapshots[0].ThreatLevel)

	events := fakes.publisher.published()
	require.Len(t, events, 1)
	event, ok := events[0].(models.DetectionEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventTypeDetection, event.Type)
	assert.Equal(t, models.ThreatCritical, event.ThreatLevel)
	require.Len(t, event.Alerts, 1)
	assert.Contains(t, event.Alerts[0], "knife")

	// 升级和分发是异步的
	require.Eventually(t, func() bool {
		return fakes.escalator.callCount() == 1 && fakes.dispatcher.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	call := fakes.dispatcher.lastCall()
	assert.Equal(t, "cam-1", call.cameraID)
	assert.Equal(t, models.ThreatCritical, call.level)
	assert.Contains(t, call.message, "knife")
}

func TestHandleFrame_BelowFloorNotPersisted(t *testing.T) {
	classifier := &fakeClassifier{
		result: &detector.Result{Detections: []models.Detection{}},
	}
	o, fakes := newTestOrchestrator(t, 0, classifier)

	admitted := o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID:  "cam-1",
		ArrivedAt: time.Now(),
	})

	require.True(t, admitted)
	assert.Empty(t, fakes.frames.stored())
	assert.Empty(t, fakes.cache.stored())

	// 空帧仍发布 detection 事件
	events := fakes.publisher.published()
	require.Len(t, events, 1)
	event := events[0].(models.DetectionEvent)
	assert.Equal(t, models.ThreatNone, event.ThreatLevel)
	assert.Empty(t, event.Detections)
}

func TestHandleFrame_ThrottledFrameDropped(t *testing.T) {
	classifier := &fakeClassifier{
		result: &detector.Result{Detections: []models.Detection{}},
	}
	o, fakes := newTestOrchestrator(t, 10, classifier)

	base := time.Now()

	assert.True(t, o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID: "cam-1", ArrivedAt: base,
	}))
	// 最小间隔内的帧被丢弃，不触达分类器
	assert.False(t, o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID: "cam-1", ArrivedAt: base.Add(50 * time.Millisecond),
	}))
	assert.True(t, o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID: "cam-1", ArrivedAt: base.Add(150 * time.Millisecond),
	}))

	assert.Equal(t, 2, classifier.callCount())
	assert.Len(t, fakes.publisher.published(), 2)
}

func TestHandleFrame_ClassifierFailureDegrades(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("detector timeout")}
	o, fakes := newTestOrchestrator(t, 0, classifier)

	admitted := o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID:  "cam-1",
		ArrivedAt: time.Now(),
	})

	// 分类失败不使该帧失败：按"无检测"继续
	require.True(t, admitted)
	events := fakes.publisher.published()
	require.Len(t, events, 1)
	event := events[0].(models.DetectionEvent)
	assert.Equal(t, models.ThreatNone, event.ThreatLevel)
	assert.Empty(t, fakes.frames.stored())
}

func TestHandleFrame_PersistFailureStillPublishes(t *testing.T) {
	classifier := &fakeClassifier{
		result: &detector.Result{
			Detections: []models.Detection{
				{Class: "person", Confidence: 0.9, BBox: []float64{0, 0, 0, 0}},
			},
			PersonCount: 1,
		},
	}
	o, fakes := newTestOrchestrator(t, 0, classifier)
	fakes.frames.err = errors.New("db down")
	fakes.cache.err = errors.New("redis down")

	admitted := o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID:  "cam-1",
		ArrivedAt: time.Now(),
	})

	// 持久化/缓存失败不阻断实时事件
	require.True(t, admitted)
	require.Len(t, fakes.publisher.published(), 1)
	require.Eventually(t, func() bool {
		return fakes.escalator.callCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHandleFrame_DifferentCamerasIndependent(t *testing.T) {
	classifier := &fakeClassifier{
		result: &detector.Result{Detections: []models.Detection{}},
	}
	o, _ := newTestOrchestrator(t, 10, classifier)

	base := time.Now()

	assert.True(t, o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID: "cam-1", ArrivedAt: base,
	}))
	// 另一摄像头不受 cam-1 节流影响
	assert.True(t, o.HandleFrame(context.Background(), models.FrameEvent{
		CameraID: "cam-2", ArrivedAt: base,
	}))
}
