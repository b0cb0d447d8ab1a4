package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wisefido-vision/internal/service"

	"go.uber.org/zap"
)

// ReportGenerator 日报生成接口（由 report.DailyReportService 实现）
type ReportGenerator interface {
	Generate(ctx context.Context, day time.Time) ([]byte, error)
}

// AlertHandler 报警 REST 处理器
type AlertHandler struct {
	alertService *service.AlertService
	reports      ReportGenerator
	logger       *zap.Logger
}

// NewAlertHandler 创建报警 REST 处理器
func NewAlertHandler(alertService *service.AlertService, reports ReportGenerator, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		reports:      reports,
		logger:       logger,
	}
}

// ListAlerts GET /api/v1/alerts
// 查询参数：camera_id, threat_level, acknowledged, page, size
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := service.ListAlertsRequest{
		CameraID:    query.Get("camera_id"),
		ThreatLevel: query.Get("threat_level"),
		Page:        parseInt(query.Get("page"), 1),
		Size:        parseInt(query.Get("size"), 20),
	}
	if v := query.Get("acknowledged"); v != "" {
		ack := v == "true"
		req.Acknowledged = &ack
	}

	resp, err := h.alertService.ListAlerts(r.Context(), req)
	if err != nil {
		if strings.Contains(err.Error(), "invalid threat_level") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to list alerts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetAlert GET /api/v1/alerts/{id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	record, err := h.alertService.GetAlert(r.Context(), alertID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Failed to get alert", zap.String("alert_id", alertID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// AcknowledgeAlert PUT /api/v1/alerts/{id}/acknowledge
func (h *AlertHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	if err := h.alertService.AcknowledgeAlert(r.Context(), alertID); err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "already acknowledged") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Failed to acknowledge alert", zap.String("alert_id", alertID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "alert_id": alertID})
}

// ListRecentFrames GET /api/v1/cameras/{id}/frames
func (h *AlertHandler) ListRecentFrames(w http.ResponseWriter, r *http.Request, cameraID string) {
	limit := parseInt(r.URL.Query().Get("limit"), 20)

	frames, err := h.alertService.ListRecentFrames(r.Context(), cameraID, limit)
	if err != nil {
		h.logger.Error("Failed to list recent frames", zap.String("camera_id", cameraID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list recent frames")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": frames})
}

// GetRealtime GET /api/v1/cameras/{id}/realtime
func (h *AlertHandler) GetRealtime(w http.ResponseWriter, r *http.Request, cameraID string) {
	snapshot, err := h.alertService.GetRealtimeSnapshot(r.Context(), cameraID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Failed to get realtime snapshot", zap.String("camera_id", cameraID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get realtime snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// DailyReport GET /api/v1/reports/daily?date=2026-08-28
// 返回 xlsx 附件；date 缺省为今天（UTC）
func (h *AlertHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	data, err := h.reports.Generate(r.Context(), day)
	if err != nil {
		h.logger.Error("Failed to generate daily report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate daily report")
		return
	}

	filename := fmt.Sprintf("security-report-%s.xlsx", day.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
