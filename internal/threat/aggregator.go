package threat

import (
	"fmt"

	"wisefido-vision/internal/models"
)

// Aggregator 威胁聚合器
// 纯函数逻辑：同一检测列表永远得到同一结果，无 I/O、无共享状态
type Aggregator struct {
	classes        map[string]models.ThreatLevel
	crowdThreshold int
}

// NewAggregator 创建威胁聚合器
// classes: label → level 映射表（配置提供）
// crowdThreshold: 人数达到该值视为聚集（<=0 关闭聚集规则）
func NewAggregator(classes map[string]string, crowdThreshold int) (*Aggregator, error) {
	parsed := make(map[string]models.ThreatLevel, len(classes))
	for label, levelName := range classes {
		level, err := models.ParseThreatLevel(levelName)
		if err != nil {
			return nil, fmt.Errorf("invalid threat mapping for label %q: %w", label, err)
		}
		parsed[label] = level
	}
	return &Aggregator{
		classes:        parsed,
		crowdThreshold: crowdThreshold,
	}, nil
}

// LevelFor 返回单个 label 对应的威胁级别（未映射的 label 为 none）
func (a *Aggregator) LevelFor(label string) models.ThreatLevel {
	if level, ok := a.classes[label]; ok {
		return level
	}
	return models.ThreatNone
}

// Aggregate 将检测列表聚合为单一威胁级别和报警原因列表
// 帧级别 = 所有检测的最大级别；reasons 按原始顺序收集 >= low 的检测
// 空列表 → (none, [])
func (a *Aggregator) Aggregate(detections []models.Detection) (models.ThreatLevel, []string) {
	overall := models.ThreatNone
	reasons := []string{}
	personCount := 0

	for _, d := range detections {
		level := a.LevelFor(d.Class)
		overall = overall.Max(level)

		if d.Class == "person" {
			personCount++
		}

		if level >= models.ThreatLow {
			reasons = append(reasons, reasonFor(d, level))
		}
	}

	// 聚集规则：人数达到阈值时整帧至少升至 high
	if a.crowdThreshold > 0 && personCount >= a.crowdThreshold {
		overall = overall.Max(models.ThreatHigh)
		reasons = append(reasons, fmt.Sprintf("Large crowd detected: %d people", personCount))
	}

	return overall, reasons
}

// reasonFor 为单个检测生成人类可读报警原因
func reasonFor(d models.Detection, level models.ThreatLevel) string {
	switch {
	case level >= models.ThreatHigh:
		return fmt.Sprintf("WEAPON DETECTED: %s (%.0f%%)", d.Class, d.Confidence*100)
	case level == models.ThreatMedium:
		return fmt.Sprintf("Suspicious object: %s (%.0f%%)", d.Class, d.Confidence*100)
	default:
		return fmt.Sprintf("%s detected (%.0f%%)", d.Class, d.Confidence*100)
	}
}
