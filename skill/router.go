package skill

// Resolve 将识别出的意图映射到 Manifest。
// 第一遍按动作 ID 精确匹配，第二遍回退到 Manifest 自身的 ID；同一遍内按输入顺序，先匹配者胜出。
func Resolve(manifests []Manifest, intent string) (*Manifest, bool) {
	if intent == "" {
		return nil, false
	}
	for i := range manifests {
		if manifests[i].HasAction(intent) {
			return &manifests[i], true
		}
	}
	for i := range manifests {
		if manifests[i].ID == intent {
			return &manifests[i], true
		}
	}
	return nil, false
}

// Registry 持有已加载的 Manifest 列表
type Registry struct {
	manifests []Manifest
	byID      map[string]int
}

// NewRegistry 创建注册表，重复 ID 以首个为准
func NewRegistry(manifests []Manifest) *Registry {
	r := &Registry{
		manifests: append([]Manifest(nil), manifests...),
		byID:      make(map[string]int, len(manifests)),
	}
	for i, m := range r.manifests {
		if _, exists := r.byID[m.ID]; !exists {
			r.byID[m.ID] = i
		}
	}
	return r
}

// Resolve 对注册表执行 Resolve
func (r *Registry) Resolve(intent string) (*Manifest, bool) {
	return Resolve(r.manifests, intent)
}

// Get 按 ID 获取 Manifest
func (r *Registry) Get(id string) (*Manifest, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &r.manifests[i], true
}

// List 返回 Manifest 副本
func (r *Registry) List() []Manifest {
	return append([]Manifest(nil), r.manifests...)
}
