// Package fixtures 提供测试用的活动与 Manifest 样例。
package fixtures

import (
	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/skill"
)

// 样例中使用的标识
const (
	ConversationID = "conv-1"
	UserID         = "user"
	ParentID       = "parent"
)

// UserMessage 返回用户在 test 渠道发给父 Bot 的消息，ID 由文本派生
func UserMessage(text string) *activity.Activity {
	a := activity.NewMessage(text)
	a.ID = "msg-" + text
	a.ChannelID = activity.ChannelTest
	a.From = &activity.ChannelAccount{ID: UserID}
	a.Recipient = &activity.ChannelAccount{ID: ParentID}
	a.Conversation = &activity.ConversationAccount{ID: ConversationID}
	return a
}

// TokenRequest 返回 Skill 发出的 tokens/request 事件
func TokenRequest(id, from, connection string) *activity.Activity {
	req := activity.NewEvent(activity.EventTokenRequest)
	req.ID = id
	req.Conversation = &activity.ConversationAccount{ID: ConversationID}
	req.From = &activity.ChannelAccount{ID: from}
	_ = req.SetValue(activity.TokenRequest{ConnectionName: connection})
	return req
}

// EndOfConversation 返回 Skill 交还控制的活动
func EndOfConversation() *activity.Activity {
	return activity.NewEndOfConversation(activity.EndCodeCompletedSuccessfully)
}

// WeatherManifest 返回带 city 槽位的天气 Skill
func WeatherManifest(endpoint string) skill.Manifest {
	return skill.Manifest{
		ID:       "weather",
		Name:     "Weather",
		Endpoint: endpoint,
		AppID:    "weather-app",
		Actions: []skill.Action{{
			ID:    "getForecast",
			Slots: []skill.Slot{{Name: "city"}},
		}},
	}
}
