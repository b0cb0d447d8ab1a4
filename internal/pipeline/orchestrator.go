package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wisefido-vision/internal/admission"
	"wisefido-vision/internal/detector"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/threat"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Classifier 分类器网关接口
type Classifier interface {
	Classify(ctx context.Context, cameraID, frame string) (*detector.Result, error)
}

// Escalator 升级协调接口
type Escalator interface {
	MaybeEscalate(ctx context.Context, cameraID string, level models.ThreatLevel, reasons []string, personCount int) bool
}

// AlertDispatcher 报警分发接口
type AlertDispatcher interface {
	Dispatch(ctx context.Context, cameraID string, level models.ThreatLevel, message string) (*models.AlertRecord, error)
}

// FramesRepo 检测帧持久化接口
type FramesRepo interface {
	CreateDetectionFrame(ctx context.Context, frame *models.DetectionFrame) error
}

// SnapshotCache 实时快照缓存接口
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snapshot *models.RealtimeSnapshot) error
}

// Publisher 检测事件发布接口（由 Hub 实现）
type Publisher interface {
	PublishToCamera(cameraID string, event interface{})
}

// Orchestrator 流水线编排器
// 对每个准入帧依次执行：分类 → 聚合 → 持久化/缓存（达到 notable 级别时）
// → 发布 detection 事件 → 异步移交升级协调与报警分发。
// 同一摄像头的帧严格按到达顺序处理，不同摄像头完全并行
type Orchestrator struct {
	admission    *admission.Controller
	classifier   Classifier
	aggregator   *threat.Aggregator
	escalator    Escalator
	dispatcher   AlertDispatcher
	framesRepo   FramesRepo
	cache        SnapshotCache
	publisher    Publisher
	notableFloor models.ThreatLevel
	logger       *zap.Logger

	mu          sync.Mutex
	sourceLocks map[string]*sync.Mutex
}

// NewOrchestrator 创建流水线编排器
func NewOrchestrator(
	admissionCtrl *admission.Controller,
	classifier Classifier,
	aggregator *threat.Aggregator,
	escalator Escalator,
	dispatcher AlertDispatcher,
	framesRepo FramesRepo,
	cache SnapshotCache,
	publisher Publisher,
	notableFloor string,
	logger *zap.Logger,
) (*Orchestrator, error) {
	floor, err := models.ParseThreatLevel(notableFloor)
	if err != nil {
		return nil, fmt.Errorf("invalid notable floor: %w", err)
	}
	return &Orchestrator{
		admission:    admissionCtrl,
		classifier:   classifier,
		aggregator:   aggregator,
		escalator:    escalator,
		dispatcher:   dispatcher,
		framesRepo:   framesRepo,
		cache:        cache,
		publisher:    publisher,
		notableFloor: floor,
		logger:       logger,
		sourceLocks:  make(map[string]*sync.Mutex),
	}, nil
}

// sourceLock 获取或创建摄像头级互斥锁（保证每摄像头同一时刻一帧在途）
func (o *Orchestrator) sourceLock(cameraID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.sourceLocks[cameraID]
	if !ok {
		lock = &sync.Mutex{}
		o.sourceLocks[cameraID] = lock
	}
	return lock
}

// HandleFrame 处理一帧
// 返回该帧是否被准入（被节流丢弃的帧返回 false）
func (o *Orchestrator) HandleFrame(ctx context.Context, event models.FrameEvent) bool {
	if !o.admission.Allow(event.CameraID, event.ArrivedAt) {
		return false
	}

	lock := o.sourceLock(event.CameraID)
	lock.Lock()
	defer lock.Unlock()

	// 分类器失败（超时/不可用）降级为"本帧无检测"，绝不阻塞流水线
	result, err := o.classifier.Classify(ctx, event.CameraID, event.Frame)
	if err != nil {
		o.logger.Warn("Classifier degraded to empty detections",
			zap.String("camera_id", event.CameraID),
			zap.Error(err),
		)
		result = &detector.Result{Detections: []models.Detection{}}
	}

	level, reasons := o.aggregator.Aggregate(result.Detections)
	now := time.Now()

	// 达到 notable 级别的帧持久化并写入实时快照
	if level >= o.notableFloor {
		frame := &models.DetectionFrame{
			FrameID:     uuid.New().String(),
			CameraID:    event.CameraID,
			ThreatLevel: level,
			Alerts:      reasons,
			PersonCount: result.PersonCount,
			DetectedAt:  event.ArrivedAt,
			CreatedAt:   now,
		}
		if err := o.framesRepo.CreateDetectionFrame(ctx, frame); err != nil {
			o.logger.Error("Failed to persist detection frame",
				zap.String("camera_id", event.CameraID),
				zap.Error(err),
			)
		}

		snapshot := &models.RealtimeSnapshot{
			CameraID:    event.CameraID,
			Detections:  result.Detections,
			Alerts:      reasons,
			ThreatLevel: level,
			PersonCount: result.PersonCount,
			Timestamp:   now.Unix(),
		}
		if err := o.cache.SetSnapshot(ctx, snapshot); err != nil {
			o.logger.Warn("Failed to cache realtime snapshot",
				zap.String("camera_id", event.CameraID),
				zap.Error(err),
			)
		}
	}

	// detection 事件始终发布给订阅者
	o.publisher.PublishToCamera(event.CameraID, models.DetectionEvent{
		Type:        models.EventTypeDetection,
		CameraID:    event.CameraID,
		Detections:  result.Detections,
		Alerts:      reasons,
		ThreatLevel: level,
		Timestamp:   now.Unix(),
	})

	// 升级与报警分发均脱离实时路径：不等待、不传播失败
	personCount := result.PersonCount
	go o.escalator.MaybeEscalate(context.Background(), event.CameraID, level, reasons, personCount)
	go func() {
		message := strings.Join(reasons, "; ")
		if _, err := o.dispatcher.Dispatch(context.Background(), event.CameraID, level, message); err != nil {
			o.logger.Error("Alert dispatch failed",
				zap.String("camera_id", event.CameraID),
				zap.Error(err),
			)
		}
	}()

	return true
}
