package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type fakeAlertStats struct {
	byLevel  map[string]int
	byCamera map[string]int
	err      error
}

func (f *fakeAlertStats) CountAlertsByLevel(ctx context.Context, start, end time.Time) (map[string]int, error) {
	return f.byLevel, f.err
}

func (f *fakeAlertStats) CountAlertsByCamera(ctx context.Context, start, end time.Time) (map[string]int, error) {
	return f.byCamera, f.err
}

type fakeFrameStats struct {
	byLevel map[string]int
}

func (f *fakeFrameStats) CountFramesByLevel(ctx context.Context, start, end time.Time) (map[string]int, error) {
	return f.byLevel, nil
}

func TestGenerate_ProducesWorkbook(t *testing.T) {
	svc := NewDailyReportService(
		&fakeAlertStats{
			byLevel:  map[string]int{"critical": 2, "high": 5},
			byCamera: map[string]int{"cam-1": 4, "cam-2": 3},
		},
		&fakeFrameStats{
			byLevel: map[string]int{"critical": 2, "high": 8, "low": 120},
		},
		zap.NewNop(),
	)

	day := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	data, err := svc.Generate(context.Background(), day)

	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Threat Summary", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Security Report - 2026-08-28", title)

	// 汇总行按严重程度降序：critical 在最上
	level, err := f.GetCellValue("Threat Summary", "A3")
	require.NoError(t, err)
	assert.Equal(t, "critical", level)

	frames, err := f.GetCellValue("Threat Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "2", frames)

	rows, err := f.GetRows("Alerts by Camera")
	require.NoError(t, err)
	// 表头 + 两个摄像头
	assert.Len(t, rows, 3)
}

func TestGenerate_EmptyDay(t *testing.T) {
	svc := NewDailyReportService(
		&fakeAlertStats{byLevel: map[string]int{}, byCamera: map[string]int{}},
		&fakeFrameStats{byLevel: map[string]int{}},
		zap.NewNop(),
	)

	data, err := svc.Generate(context.Background(), time.Now())

	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// 零数据仍有四个级别的汇总行
	count, err := f.GetCellValue("Threat Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "0", count)
}

func TestGenerate_StatsError(t *testing.T) {
	svc := NewDailyReportService(
		&fakeAlertStats{err: errors.New("db down")},
		&fakeFrameStats{},
		zap.NewNop(),
	)

	_, err := svc.Generate(context.Background(), time.Now())

	assert.Error(t, err)
}
