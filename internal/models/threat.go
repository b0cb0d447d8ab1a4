package models

import (
	"encoding/json"
	"fmt"
)

// ThreatLevel 威胁级别（全序枚举）
// none < low < medium < high < critical
type ThreatLevel int

const (
	ThreatNone ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

var threatLevelNames = map[ThreatLevel]string{
	ThreatNone:     "none",
	ThreatLow:      "low",
	ThreatMedium:   "medium",
	ThreatHigh:     "high",
	ThreatCritical: "critical",
}

// String 返回威胁级别的字符串表示
func (l ThreatLevel) String() string {
	if name, ok := threatLevelNames[l]; ok {
		return name
	}
	return "none"
}

// ParseThreatLevel 解析威胁级别字符串
func ParseThreatLevel(s string) (ThreatLevel, error) {
	for level, name := range threatLevelNames {
		if name == s {
			return level, nil
		}
	}
	return ThreatNone, fmt.Errorf("invalid threat level: %s", s)
}

// MarshalJSON 序列化为字符串（与前端协议保持一致）
func (l ThreatLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON 从字符串反序列化
func (l *ThreatLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseThreatLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// Max 返回两个威胁级别中较高的一个
func (l ThreatLevel) Max(other ThreatLevel) ThreatLevel {
	if other > l {
		return other
	}
	return l
}
