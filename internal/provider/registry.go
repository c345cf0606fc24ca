package provider

import (
	"errors"
	"fmt"
	"sort"

	"checkin_engine/internal/model"
)

// ErrNotFound 账号引用了不存在的 provider。只影响该账号，不影响整个批次。
var ErrNotFound = errors.New("provider not found")

// Registry 名称到 ProviderConfig 的只读映射，加载一次后整个运行期不变。
type Registry struct {
	providers map[string]model.ProviderConfig
}

func NewRegistry(providers map[string]model.ProviderConfig) *Registry {
	m := make(map[string]model.ProviderConfig, len(providers))
	for name, p := range providers {
		p.Name = name
		p.ApplyDefaults()
		m[name] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (model.ProviderConfig, error) {
	p, ok := r.providers[name]
	if !ok {
		return model.ProviderConfig{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int { return len(r.providers) }
