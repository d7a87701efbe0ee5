package dashboard

import (
	"ConsumerSegmentation/src/config"
	"ConsumerSegmentation/src/processor"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Snapshot 一次完整重算后的页面状态
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Inputs    Inputs            `json:"inputs"`
	Rows      int               `json:"rows"`
	Summary   processor.Summary `json:"summary"`
	Stats     []StatLine        `json:"stats"`
	Cluster   ClusterState      `json:"cluster"`
	Image     processor.Image   `json:"image"`
	Table     processor.Table   `json:"table"`
}

type ClusterState struct {
	Status processor.ClusterStatus `json:"status"`
	K      int                     `json:"k"`
	Reason string                  `json:"reason,omitempty"`
}

// StatLine 统计面板中的一行文本
type StatLine struct {
	Key         string `json:"key"`
	Text        string `json:"text"`
	Placeholder bool   `json:"placeholder"`
}

// NewPrinter 按语言格式化数字，无法识别的语言退回英文
func NewPrinter(lang string) (*message.Printer, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return message.NewPrinter(language.English), fmt.Errorf("parse language %q: %w", lang, err)
	}
	return message.NewPrinter(tag), nil
}

// RenderStats 把统计结果转成展示文本
//
//	缺列       -> not_found 模板
//	没有可统计的行 -> 只显示标签
//	其他       -> 标签 + 数值(均值保留两位小数)
func RenderStats(sum processor.Summary, dc *config.DataConfig, p *message.Printer) []StatLine {
	labels := dc.Labels
	return []StatLine{
		renderStat("online", sum.Online, labels, p, "%s %d"),
		renderStat("cash_age", sum.CashAge, labels, p, "%s %.2f"),
		renderStat("income_age", sum.IncomeAge, labels, p, "%s %.2f"),
	}
}

func renderStat[T processor.Number](key string, s processor.Stat[T], labels config.Labels, p *message.Printer, format string) StatLine {
	label := statLabel(key, labels)
	switch s.Status {
	case processor.Available:
		return StatLine{Key: key, Text: p.Sprintf(format, label, s.Value)}
	case processor.MissingColumn:
		return StatLine{Key: key, Text: fmt.Sprintf(labels.NotFound, s.Column), Placeholder: true}
	default:
		return StatLine{Key: key, Text: label, Placeholder: true}
	}
}

func statLabel(key string, labels config.Labels) string {
	switch key {
	case "online":
		return labels.Online
	case "cash_age":
		return labels.CashAge
	default:
		return labels.IncomeAge
	}
}
