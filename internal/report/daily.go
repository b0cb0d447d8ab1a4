package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xuri/excelize/v2"
)

// AlertStats 报警统计接口（由 repository.AlertsRepository 实现）
type AlertStats interface {
	CountAlertsByLevel(ctx context.Context, start, end time.Time) (map[string]int, error)
	CountAlertsByCamera(ctx context.Context, start, end time.Time) (map[string]int, error)
}

// FrameStats 检测帧统计接口（由 repository.FramesRepository 实现）
type FrameStats interface {
	CountFramesByLevel(ctx context.Context, start, end time.Time) (map[string]int, error)
}

// summaryHeader 威胁汇总表头
var summaryHeader = []string{
	"Threat Level",
	"Detection Frames",
	"Alerts",
}

// cameraHeader 摄像头报警表头
var cameraHeader = []string{
	"Camera ID",
	"Alerts",
}

// 汇总行按严重程度降序排列
var reportLevels = []string{"critical", "high", "medium", "low"}

// DailyReportService 日报服务
// 生成某一天（UTC 自然日）的威胁汇总 Excel 报表
type DailyReportService struct {
	alertStats AlertStats
	frameStats FrameStats
	logger     *zap.Logger
}

// NewDailyReportService 创建日报服务
func NewDailyReportService(alertStats AlertStats, frameStats FrameStats, logger *zap.Logger) *DailyReportService {
	return &DailyReportService{
		alertStats: alertStats,
		frameStats: frameStats,
		logger:     logger,
	}
}

// Generate 生成指定日期的日报 Excel 文件
func (s *DailyReportService) Generate(ctx context.Context, day time.Time) ([]byte, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	alertCounts, err := s.alertStats.CountAlertsByLevel(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by level: %w", err)
	}
	frameCounts, err := s.frameStats.CountFramesByLevel(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count frames by level: %w", err)
	}
	cameraCounts, err := s.alertStats.CountAlertsByCamera(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by camera: %w", err)
	}

	data, err := buildDailyWorkbook(start, frameCounts, alertCounts, cameraCounts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Daily report generated",
		zap.String("date", start.Format("2006-01-02")),
		zap.Int("size_bytes", len(data)),
	)

	return data, nil
}

// buildDailyWorkbook 构建日报工作簿
func buildDailyWorkbook(day time.Time, frameCounts, alertCounts, cameraCounts map[string]int) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	summarySheet := "Threat Summary"
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 报表标题
	if err := f.SetCellValue(summarySheet, "A1", fmt.Sprintf("Security Report - %s", day.Format("2006-01-02"))); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set title: %w", err)
	}

	if err := writeHeaderRow(f, summarySheet, 2, summaryHeader, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	// 汇总数据行
	for i, level := range reportLevels {
		row := i + 3
		if err := setRow(f, summarySheet, row, []interface{}{
			level,
			frameCounts[level],
			alertCounts[level],
		}); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, width := range []float64{18, 18, 12} {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(summarySheet, col, col, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 摄像头分布工作表
	cameraSheet := "Alerts by Camera"
	if _, err := f.NewSheet(cameraSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeHeaderRow(f, cameraSheet, 1, cameraHeader, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	row := 2
	for cameraID, count := range cameraCounts {
		if err := setRow(f, cameraSheet, row, []interface{}{cameraID, count}); err != nil {
			f.Close()
			return nil, err
		}
		row++
	}

	if err := f.SetColWidth(cameraSheet, "A", "A", 24); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}

	return buf.Bytes(), nil
}

// writeHeaderRow 写入带样式的表头行
func writeHeaderRow(f *excelize.File, sheet string, row int, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

// setRow 写入一行数据
func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}
