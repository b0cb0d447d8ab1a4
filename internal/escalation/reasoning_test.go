package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wisefido-vision/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnalyze_Success(t *testing.T) {
	var captured generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"response": "  A person carrying a knife is visible. Immediate response recommended.  ",
		})
	}))
	defer server.Close()

	client := NewReasoningClient(server.URL, "llama3.2", time.Second, zap.NewNop())
	analysis, err := client.Analyze(context.Background(), AnalysisRequest{
		CameraID:    "cam-1",
		CameraName:  "Camera cam-1",
		Reasons:     []string{"WEAPON DETECTED: knife (80%)"},
		ThreatLevel: models.ThreatCritical,
		PersonCount: 1,
	})

	require.NoError(t, err)
	// 响应前后空白被裁剪
	assert.Equal(t, "A person carrying a knife is visible. Immediate response recommended.", analysis)

	assert.Equal(t, "llama3.2", captured.Model)
	assert.False(t, captured.Stream)
	assert.Contains(t, captured.Prompt, "CRITICAL")
	assert.Contains(t, captured.Prompt, "WEAPON DETECTED: knife (80%)")
	assert.Contains(t, captured.Prompt, "Camera cam-1")
}

func TestAnalyze_EmptyResponseIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"response": "   "})
	}))
	defer server.Close()

	client := NewReasoningClient(server.URL, "llama3.2", time.Second, zap.NewNop())
	_, err := client.Analyze(context.Background(), AnalysisRequest{CameraID: "cam-1"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty analysis")
}

func TestAnalyze_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewReasoningClient(server.URL, "llama3.2", time.Second, zap.NewNop())
	_, err := client.Analyze(context.Background(), AnalysisRequest{CameraID: "cam-1"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestAnalyze_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewReasoningClient(server.URL, "llama3.2", 50*time.Millisecond, zap.NewNop())
	_, err := client.Analyze(context.Background(), AnalysisRequest{CameraID: "cam-1"})

	assert.Error(t, err)
}

func TestBuildPrompt_NoReasons(t *testing.T) {
	prompt := buildPrompt(AnalysisRequest{
		CameraID:    "cam-1",
		CameraName:  "Camera cam-1",
		ThreatLevel: models.ThreatLow,
	})

	assert.Contains(t, prompt, "No specific alerts")
	assert.Contains(t, prompt, "LOW")
}
