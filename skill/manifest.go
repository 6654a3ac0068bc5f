package skill

import (
	"errors"
	"fmt"
	"net/url"
)

// Manifest 描述一个可调用的 Skill。加载后不可变，由父进程配置持有。
type Manifest struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name,omitempty" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Endpoint    string   `json:"endpoint" yaml:"endpoint"`
	AppID       string   `json:"appId,omitempty" yaml:"app_id"`
	Actions     []Action `json:"actions,omitempty" yaml:"actions"`
}

// Action 是 Skill 暴露的一个可调用动作
type Action struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description"`
	Slots       []Slot `json:"slots,omitempty" yaml:"slots"`
}

// Slot 是动作可接受的预填参数
type Slot struct {
	Name  string   `json:"name" yaml:"name"`
	Types []string `json:"types,omitempty" yaml:"types"`
}

var (
	ErrManifestID       = errors.New("manifest id is required")
	ErrManifestEndpoint = errors.New("manifest endpoint is required")
)

// Validate 校验 Manifest
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return ErrManifestID
	}
	if m.Endpoint == "" {
		return fmt.Errorf("%w: %s", ErrManifestEndpoint, m.ID)
	}
	u, err := url.Parse(m.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("manifest %s: invalid endpoint %q", m.ID, m.Endpoint)
	}
	return nil
}

// HasAction 报告 Manifest 是否暴露指定动作（精确匹配）
func (m *Manifest) HasAction(actionID string) bool {
	return m.Action(actionID) != nil
}

// Action 按 ID 查找动作
func (m *Manifest) Action(actionID string) *Action {
	for i := range m.Actions {
		if m.Actions[i].ID == actionID {
			return &m.Actions[i]
		}
	}
	return nil
}
