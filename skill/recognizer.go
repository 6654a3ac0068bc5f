package skill

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/skillflow/activity"
)

// Recognition 是意图识别结果
type Recognition struct {
	Intent   string
	Score    float64
	Entities map[string]any
}

// None 报告是否未识别出意图
func (r Recognition) None() bool { return r.Intent == "" }

// Recognizer 意图识别协作者，返回得分最高的意图
type Recognizer interface {
	Recognize(ctx context.Context, a *activity.Activity) (Recognition, error)
}

// Pattern 将正则表达式映射到意图；命名捕获组作为实体
type Pattern struct {
	Intent string `json:"intent" yaml:"intent"`
	Expr   string `json:"expr" yaml:"expr"`
}

type compiledPattern struct {
	intent string
	re     *regexp.Regexp
}

// PatternRecognizer 基于正则的意图识别器，不区分大小写，按配置顺序首个匹配胜出
type PatternRecognizer struct {
	patterns []compiledPattern
}

// NewPatternRecognizer 编译全部模式
func NewPatternRecognizer(patterns []Pattern) (*PatternRecognizer, error) {
	r := &PatternRecognizer{patterns: make([]compiledPattern, 0, len(patterns))}
	for _, p := range patterns {
		if p.Intent == "" {
			return nil, fmt.Errorf("pattern %q: intent is required", p.Expr)
		}
		re, err := regexp.Compile("(?i)" + p.Expr)
		if err != nil {
			return nil, fmt.Errorf("pattern for intent %s: %w", p.Intent, err)
		}
		r.patterns = append(r.patterns, compiledPattern{intent: p.Intent, re: re})
	}
	return r, nil
}

// Recognize 实现 Recognizer。只识别 message 活动。
func (r *PatternRecognizer) Recognize(_ context.Context, a *activity.Activity) (Recognition, error) {
	if a == nil || a.Type != activity.TypeMessage {
		return Recognition{}, nil
	}
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return Recognition{}, nil
	}
	for _, p := range r.patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		entities := make(map[string]any)
		for i, name := range p.re.SubexpNames() {
			if name != "" && m[i] != "" {
				entities[name] = m[i]
			}
		}
		return Recognition{Intent: p.intent, Score: 1, Entities: entities}, nil
	}
	return Recognition{}, nil
}
