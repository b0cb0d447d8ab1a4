package detector

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"wisefido-vision/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// 分类器网关错误（对流水线而言均非致命，降级为空检测列表）
var (
	ErrTimeout     = errors.New("detector request timeout")
	ErrUnavailable = errors.New("detector unavailable")
)

// DetectRequest 分类器服务请求
type DetectRequest struct {
	CameraID string `json:"camera_id"`
	Frame    string `json:"frame"` // base64 data URL
}

// DetectResponse 分类器服务响应
type DetectResponse struct {
	Success    bool           `json:"success"`
	Detections []rawDetection `json:"detections"`
	Stats      DetectStats    `json:"stats"`
}

// rawDetection 分类器服务的检测条目
type rawDetection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// DetectStats 分类器服务的派生统计
type DetectStats struct {
	PersonCount    int  `json:"person_count"`
	TotalObjects   int  `json:"total_objects"`
	WeaponDetected bool `json:"weapon_detected"`
}

// Result 归一化后的分类结果
type Result struct {
	Detections  []models.Detection
	PersonCount int
}

// Client 分类器服务 HTTP 网关
// 超时受限的请求/响应交换，失败计数仅用于健康上报，不影响控制流
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger

	failureCount int64
}

// NewClient 创建分类器网关
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Classify 对一帧图像做目标检测，归一化为内部 Detection 列表
// 超时和不可用均返回对应错误；"无目标"是空列表而非错误
func (c *Client) Classify(ctx context.Context, cameraID, frame string) (*Result, error) {
	var response DetectResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(DetectRequest{CameraID: cameraID, Frame: frame}).
		SetResult(&response).
		Post("/detect-frame")

	if err != nil {
		atomic.AddInt64(&c.failureCount, 1)
		if isTimeout(err) {
			c.logger.Warn("Detector request timeout",
				zap.String("camera_id", cameraID),
			)
			return nil, ErrTimeout
		}
		c.logger.Warn("Detector request failed",
			zap.String("camera_id", cameraID),
			zap.Error(err),
		)
		return nil, ErrUnavailable
	}

	if resp.StatusCode() != http.StatusOK {
		atomic.AddInt64(&c.failureCount, 1)
		c.logger.Warn("Detector returned non-OK status",
			zap.String("camera_id", cameraID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, ErrUnavailable
	}

	if !response.Success {
		atomic.AddInt64(&c.failureCount, 1)
		return nil, ErrUnavailable
	}

	// 归一化检测列表
	detections := make([]models.Detection, 0, len(response.Detections))
	for _, d := range response.Detections {
		bbox := d.BBox
		if bbox == nil {
			bbox = []float64{0, 0, 0, 0}
		}
		detections = append(detections, models.Detection{
			Class:      d.Class,
			Confidence: d.Confidence,
			BBox:       bbox,
		})
	}

	return &Result{
		Detections:  detections,
		PersonCount: response.Stats.PersonCount,
	}, nil
}

// Health 检查分类器服务是否可用
func (c *Client) Health(ctx context.Context) bool {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/yolo-health")
	return err == nil && resp.StatusCode() == http.StatusOK
}

// FailureCount 返回累计失败次数（用于健康上报）
func (c *Client) FailureCount() int64 {
	return atomic.LoadInt64(&c.failureCount)
}

// isTimeout 判断错误是否为超时
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}
