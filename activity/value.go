package activity

import (
	"encoding/json"
	"fmt"
)

// ValueKind 标识 value 负载的具体形态
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueSlots
	ValueTokenRequest
	ValueTokenResponse
	ValueRaw
)

func (k ValueKind) String() string {
	switch k {
	case ValueNone:
		return "none"
	case ValueSlots:
		return "slots"
	case ValueTokenRequest:
		return "token_request"
	case ValueTokenResponse:
		return "token_response"
	case ValueRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// TokenRequest 是 Skill 在 tokens/request 事件中携带的负载
type TokenRequest struct {
	ConnectionName string         `json:"connectionName,omitempty"`
	Settings       map[string]any `json:"settings,omitempty"`
}

// TokenResponse 是父 Bot 在 tokens/response 事件中回传的令牌
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token"`
	Expiration     string `json:"expiration,omitempty"`
}

// Value 是 value 字段的标签联合：根据活动的 name/type 选择形态。
type Value struct {
	Kind          ValueKind
	Slots         map[string]any
	TokenRequest  *TokenRequest
	TokenResponse *TokenResponse
	Raw           json.RawMessage
}

// KindOf 根据 name/type 推断 value 形态（不检查负载内容）
func KindOf(a *Activity) ValueKind {
	if a == nil || len(a.Value) == 0 || string(a.Value) == "null" {
		return ValueNone
	}
	if a.Type == TypeEvent {
		switch a.Name {
		case EventSkillBegin:
			return ValueSlots
		case EventTokenRequest:
			return ValueTokenRequest
		case EventTokenResponse:
			return ValueTokenResponse
		}
	}
	return ValueRaw
}

// DecodeValue 在消费点显式解码 value
func (a *Activity) DecodeValue() (Value, error) {
	v := Value{Kind: KindOf(a)}
	switch v.Kind {
	case ValueNone:
		return v, nil
	case ValueSlots:
		v.Slots = make(map[string]any)
		if err := json.Unmarshal(a.Value, &v.Slots); err != nil {
			return Value{}, fmt.Errorf("decode %s slots: %w", a.Name, err)
		}
	case ValueTokenRequest:
		v.TokenRequest = &TokenRequest{}
		if err := json.Unmarshal(a.Value, v.TokenRequest); err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", a.Name, err)
		}
	case ValueTokenResponse:
		v.TokenResponse = &TokenResponse{}
		if err := json.Unmarshal(a.Value, v.TokenResponse); err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", a.Name, err)
		}
	default:
		v.Raw = append(json.RawMessage(nil), a.Value...)
	}
	return v, nil
}

// SlotValues 解码 skillBegin 事件携带的槽位
func (a *Activity) SlotValues() (map[string]any, error) {
	v, err := a.DecodeValue()
	if err != nil {
		return nil, err
	}
	if v.Kind != ValueSlots && v.Kind != ValueNone {
		return nil, fmt.Errorf("activity value is %s, not slots", v.Kind)
	}
	if v.Slots == nil {
		return map[string]any{}, nil
	}
	return v.Slots, nil
}

// TokenResponseValue 解码 tokens/response 负载
func (a *Activity) TokenResponseValue() (*TokenResponse, error) {
	v, err := a.DecodeValue()
	if err != nil {
		return nil, err
	}
	if v.Kind != ValueTokenResponse {
		return nil, fmt.Errorf("activity value is %s, not token_response", v.Kind)
	}
	return v.TokenResponse, nil
}

// TokenRequestValue 解码 tokens/request 负载；空负载返回零值请求
func (a *Activity) TokenRequestValue() (*TokenRequest, error) {
	v, err := a.DecodeValue()
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case ValueNone:
		return &TokenRequest{}, nil
	case ValueTokenRequest:
		return v.TokenRequest, nil
	default:
		return nil, fmt.Errorf("activity value is %s, not token_request", v.Kind)
	}
}

// delay 活动的缺省与上限毫秒数
const (
	DefaultDelayMillis = 1000
	MaxDelayMillis     = 60_000
)

// DelayValue 返回 delay 活动的毫秒数，缺省 1000，超过 MaxDelayMillis 的取上限
func (a *Activity) DelayValue() int {
	if len(a.Value) == 0 {
		return DefaultDelayMillis
	}
	var ms float64
	if err := json.Unmarshal(a.Value, &ms); err != nil || ms < 0 {
		return DefaultDelayMillis
	}
	if ms > MaxDelayMillis {
		return MaxDelayMillis
	}
	return int(ms)
}
