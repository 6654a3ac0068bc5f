package activity

// ConversationReference 是定位一个会话所需的寻址元组。协议只复制它，从不修改。
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	Locale       string               `json:"locale,omitempty"`
}

// Reference 从入站活动提取会话引用
func (a *Activity) Reference() ConversationReference {
	ref := ConversationReference{
		ActivityID: a.ID,
		ChannelID:  a.ChannelID,
		ServiceURL: a.ServiceURL,
		Locale:     a.Locale,
	}
	if a.From != nil {
		user := *a.From
		ref.User = &user
	}
	if a.Recipient != nil {
		bot := *a.Recipient
		ref.Bot = &bot
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		ref.Conversation = &conv
	}
	return ref
}

// ApplyReference 用会话引用填充寻址字段。
// incoming 为 true 时活动视为来自用户，否则视为 Bot 发往用户。
func (a *Activity) ApplyReference(ref ConversationReference, incoming bool) *Activity {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	if ref.Locale != "" && a.Locale == "" {
		a.Locale = ref.Locale
	}
	if ref.Conversation != nil {
		conv := *ref.Conversation
		a.Conversation = &conv
	}

	user, bot := copyAccount(ref.User), copyAccount(ref.Bot)
	if incoming {
		a.From, a.Recipient = user, bot
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
	} else {
		a.From, a.Recipient = bot, user
		if ref.ActivityID != "" {
			a.ReplyToID = ref.ActivityID
		}
	}
	return a
}

func copyAccount(acc *ChannelAccount) *ChannelAccount {
	if acc == nil {
		return nil
	}
	c := *acc
	return &c
}
