package escalation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wisefido-vision/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// AnalysisRequest 上下文推理请求
type AnalysisRequest struct {
	CameraID    string
	CameraName  string
	Reasons     []string
	ThreatLevel models.ThreatLevel
	PersonCount int
}

// Reasoner 上下文推理服务接口
type Reasoner interface {
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}

// generateRequest 推理服务 API 请求体（Ollama generate 协议）
type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options"`
}

// generateResponse 推理服务 API 响应体
type generateResponse struct {
	Response string `json:"response"`
}

// ReasoningClient 上下文推理服务 HTTP 客户端
type ReasoningClient struct {
	httpClient *resty.Client
	model      string
	logger     *zap.Logger
}

// NewReasoningClient 创建推理服务客户端
func NewReasoningClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) *ReasoningClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ReasoningClient{
		httpClient: client,
		model:      model,
		logger:     logger,
	}
}

// Analyze 调用推理服务对报警场景做上下文分析
// 超时或失败返回错误，由协调器降级处理（不产生分析事件）
func (c *ReasoningClient) Analyze(ctx context.Context, req AnalysisRequest) (string, error) {
	var response generateResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Model:  c.model,
			Prompt: buildPrompt(req),
			Stream: false,
			Options: map[string]interface{}{
				"temperature": 0.3,
				"num_predict": 150,
			},
		}).
		SetResult(&response).
		Post("/api/generate")

	if err != nil {
		return "", fmt.Errorf("reasoning request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("reasoning service returned status %d", resp.StatusCode())
	}

	analysis := strings.TrimSpace(response.Response)
	if analysis == "" {
		return "", fmt.Errorf("reasoning service returned empty analysis")
	}
	return analysis, nil
}

// buildPrompt 构建安防场景分析提示词
func buildPrompt(req AnalysisRequest) string {
	alertText := "No specific alerts"
	if len(req.Reasons) > 0 {
		alertText = strings.Join(req.Reasons, "\n")
	}

	return fmt.Sprintf(`You are a security AI assistant analyzing surveillance camera footage.

Camera: %s (ID: %s)
Threat Level: %s
People Detected: %d

Detection Alerts:
%s

Provide a brief security assessment (2-3 sentences) covering:
1. What is happening in the scene
2. Whether immediate action is needed
3. Any recommended security response

Keep your response concise and actionable.`,
		req.CameraName,
		req.CameraID,
		strings.ToUpper(req.ThreatLevel.String()),
		req.PersonCount,
		alertText,
	)
}
