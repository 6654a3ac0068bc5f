package activity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// 📨 Activity 消息信封
// =============================================================================

// Type 活动类型（判别标签）
type Type string

const (
	TypeMessage           Type = "message"
	TypeEvent             Type = "event"
	TypeTrace             Type = "trace"
	TypeEndOfConversation Type = "endOfConversation"
	TypeTyping            Type = "typing"
	TypeDelay             Type = "delay"
	TypeHandoff           Type = "handoff"
)

// IsValid 检查是否为已知的活动类型
func (t Type) IsValid() bool {
	switch t {
	case TypeMessage, TypeEvent, TypeTrace, TypeEndOfConversation,
		TypeTyping, TypeDelay, TypeHandoff:
		return true
	default:
		return false
	}
}

// 协议事件名称
const (
	EventSkillBegin            = "skillBegin"
	EventTokenRequest          = "tokens/request"
	EventTokenResponse         = "tokens/response"
	EventCancelAllSkillDialogs = "cancelAllSkillDialogs"
)

// 渠道标识
const (
	ChannelEmulator = "emulator"
	ChannelTest     = "test"
)

// EndOfConversationCodes
const (
	EndCodeCompletedSuccessfully = "completedSuccessfully"
	EndCodeUserCancelled         = "userCancelled"
	EndCodeSkillError            = "skillError"
)

// ChannelAccount 会话参与者
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount 会话标识
type ConversationAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	IsGroup  bool   `json:"isGroup,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// Activity 是父 Bot 与 Skill 之间交换的统一消息单元。
// 时间字段在线路上是 ISO-8601 字符串，解码时由 UnmarshalJSON 还原为 time.Time。
type Activity struct {
	Type           Type                 `json:"type"`
	ID             string               `json:"id,omitempty"`
	Timestamp      *time.Time           `json:"timestamp,omitempty"`
	LocalTimestamp *time.Time           `json:"localTimestamp,omitempty"`
	Expiration     *time.Time           `json:"expiration,omitempty"`
	ChannelID      string               `json:"channelId,omitempty"`
	ServiceURL     string               `json:"serviceUrl,omitempty"`
	From           *ChannelAccount      `json:"from,omitempty"`
	Recipient      *ChannelAccount      `json:"recipient,omitempty"`
	Conversation   *ConversationAccount `json:"conversation,omitempty"`
	ReplyToID      string               `json:"replyToId,omitempty"`
	Text           string               `json:"text,omitempty"`
	Speak          string               `json:"speak,omitempty"`
	Locale         string               `json:"locale,omitempty"`
	Name           string               `json:"name,omitempty"`
	Label          string               `json:"label,omitempty"`
	Code           string               `json:"code,omitempty"`
	ValueType      string               `json:"valueType,omitempty"`
	Value          json.RawMessage      `json:"value,omitempty"`
	ChannelData    json.RawMessage      `json:"channelData,omitempty"`
}

// NewMessage 创建文本消息
func NewMessage(text string) *Activity {
	return &Activity{Type: TypeMessage, Text: text}
}

// NewEvent 创建事件活动
func NewEvent(name string) *Activity {
	return &Activity{Type: TypeEvent, Name: name}
}

// NewEndOfConversation 创建会话结束活动
func NewEndOfConversation(code string) *Activity {
	return &Activity{Type: TypeEndOfConversation, Code: code}
}

// IsEvent 判断是否为指定名称的事件
func (a *Activity) IsEvent(name string) bool {
	return a != nil && a.Type == TypeEvent && a.Name == name
}

// IsTokenRequest 判断是否为 Skill 向调用方索取令牌的 tokens/request 事件
func (a *Activity) IsTokenRequest() bool {
	return a.IsEvent(EventTokenRequest)
}

// IsEndOfConversation 判断活动是否把会话控制权交还父 Bot
func (a *Activity) IsEndOfConversation() bool {
	return a != nil && a.Type == TypeEndOfConversation
}

// Validate 校验跨越协议边界的活动
func (a *Activity) Validate() error {
	if a == nil {
		return ErrNotObject
	}
	if a.Type == "" {
		return ErrMissingType
	}
	return nil
}

// EnsureID 为缺少 ID 的活动生成 ID
func (a *Activity) EnsureID() string {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return a.ID
}

// CreateReply 创建回复：交换 from/recipient，保持同一会话，replyToId 指向本活动。
func (a *Activity) CreateReply(text string) *Activity {
	now := time.Now().UTC()
	reply := &Activity{
		Type:       TypeMessage,
		Timestamp:  &now,
		ChannelID:  a.ChannelID,
		ServiceURL: a.ServiceURL,
		ReplyToID:  a.ID,
		Text:       text,
		Locale:     a.Locale,
	}
	if a.Recipient != nil {
		from := *a.Recipient
		reply.From = &from
	}
	if a.From != nil {
		to := *a.From
		reply.Recipient = &to
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		reply.Conversation = &conv
	}
	return reply
}

// CreateTrace 创建一个回复形态的 trace 活动
func (a *Activity) CreateTrace(name string, value any, valueType, label string) *Activity {
	trace := a.CreateReply("")
	trace.Type = TypeTrace
	trace.Name = name
	trace.Label = label
	trace.ValueType = valueType
	if value != nil {
		_ = trace.SetValue(value)
	}
	return trace
}

// SetValue 序列化并设置 value 负载
func (a *Activity) SetValue(v any) error {
	if v == nil {
		a.Value = nil
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		a.Value = raw
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.Value = data
	return nil
}

// Clone 深拷贝活动
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	c.Timestamp = cloneTime(a.Timestamp)
	c.LocalTimestamp = cloneTime(a.LocalTimestamp)
	c.Expiration = cloneTime(a.Expiration)
	if a.From != nil {
		from := *a.From
		c.From = &from
	}
	if a.Recipient != nil {
		to := *a.Recipient
		c.Recipient = &to
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		c.Conversation = &conv
	}
	if a.Value != nil {
		c.Value = append(json.RawMessage(nil), a.Value...)
	}
	if a.ChannelData != nil {
		c.ChannelData = append(json.RawMessage(nil), a.ChannelData...)
	}
	return &c
}

// ConversationID 返回会话 ID（无会话时为空）
func (a *Activity) ConversationID() string {
	if a == nil || a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
