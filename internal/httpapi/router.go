package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"wisefido-vision/internal/hub"

	"go.uber.org/zap"
)

// DetectorHealth 分类器健康探测接口（由 detector.Client 实现）
type DetectorHealth interface {
	Health(ctx context.Context) bool
	FailureCount() int64
}

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRoutes 注册全部路由
func (r *Router) RegisterRoutes(alerts *AlertHandler, ws *WSHandler, h *hub.Hub, detector DetectorHealth) {
	// WebSocket 入口
	r.mux.Handle("/ws", ws)

	// 健康检查
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := "healthy"
		detectorOK := detector.Health(ctx)
		if !detectorOK {
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":            status,
			"connections":       h.ConnectionCount(),
			"detector_healthy":  detectorOK,
			"detector_failures": detector.FailureCount(),
			"timestamp":         time.Now().Unix(),
		})
	})

	// 报警列表
	r.Handle("/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alerts.ListAlerts(w, req)
	})

	// 报警详情 / 确认
	// /api/v1/alerts/{id} 和 /api/v1/alerts/{id}/acknowledge
	r.Handle("/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/alerts/")
		parts := strings.Split(rest, "/")

		switch {
		case len(parts) == 1 && parts[0] != "":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			alerts.GetAlert(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "acknowledge":
			if req.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			alerts.AcknowledgeAlert(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// 摄像头检测历史与实时快照
	// /api/v1/cameras/{id}/frames 和 /api/v1/cameras/{id}/realtime
	r.Handle("/api/v1/cameras/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/cameras/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch parts[1] {
		case "frames":
			alerts.ListRecentFrames(w, req, parts[0])
		case "realtime":
			alerts.GetRealtime(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// 日报导出
	r.Handle("/api/v1/reports/daily", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alerts.DailyReport(w, req)
	})
}
