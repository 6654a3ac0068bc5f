package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timestampLayouts 是线路上可能出现的 ISO-8601 变体，按常见程度排序。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp 解析 ISO-8601 字符串；无时区时按 UTC 处理
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// UnmarshalJSON 解码活动并修复字符串编码的时间字段
func (a *Activity) UnmarshalJSON(data []byte) error {
	type alias Activity
	aux := struct {
		*alias
		Timestamp      json.RawMessage `json:"timestamp,omitempty"`
		LocalTimestamp json.RawMessage `json:"localTimestamp,omitempty"`
		Expiration     json.RawMessage `json:"expiration,omitempty"`
	}{alias: (*alias)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if a.Timestamp, err = repairTimestamp(aux.Timestamp); err != nil {
		return err
	}
	if a.LocalTimestamp, err = repairTimestamp(aux.LocalTimestamp); err != nil {
		return err
	}
	if a.Expiration, err = repairTimestamp(aux.Expiration); err != nil {
		return err
	}
	return nil
}

func repairTimestamp(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadTimestamp, raw)
	}
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Decode 解析单个入站活动。非对象请求体、缺少 type 都是致命错误。
func Decode(data []byte) (*Activity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var a Activity
	if err := json.Unmarshal(trimmed, &a); err != nil {
		if IsDecodeError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// DecodeBatch 解析 Skill 返回的有序活动列表。空响应体视为空批次。
func DecodeBatch(data []byte) ([]*Activity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: reply batch is not a JSON array", ErrMalformed)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	batch := make([]*Activity, 0, len(raws))
	for i, raw := range raws {
		a, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("reply activity %d: %w", i, err)
		}
		batch = append(batch, a)
	}
	return batch, nil
}

// EncodeBatch 序列化活动批次；nil 编码为空数组
func EncodeBatch(batch []*Activity) ([]byte, error) {
	if batch == nil {
		batch = []*Activity{}
	}
	return json.Marshal(batch)
}
