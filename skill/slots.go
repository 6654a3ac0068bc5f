package skill

// SlotContext 是开始时传给 Skill 的预填参数。交给 Skill 后只读。
type SlotContext map[string]any

// NewSlotContext 创建空的槽位上下文
func NewSlotContext() SlotContext {
	return make(SlotContext)
}

// BuildSlotContext 从识别出的实体填充槽位。
// 动作声明了槽位时只复制声明的槽位，否则复制全部实体。
func BuildSlotContext(action *Action, entities map[string]any) SlotContext {
	sc := NewSlotContext()
	if len(entities) == 0 {
		return sc
	}
	if action == nil || len(action.Slots) == 0 {
		for k, v := range entities {
			sc[k] = v
		}
		return sc
	}
	for _, slot := range action.Slots {
		if v, ok := entities[slot.Name]; ok {
			sc[slot.Name] = v
		}
	}
	return sc
}

// Clone 返回浅拷贝
func (sc SlotContext) Clone() SlotContext {
	c := make(SlotContext, len(sc))
	for k, v := range sc {
		c[k] = v
	}
	return c
}
