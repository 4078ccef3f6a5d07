package model

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Backend 是一个可按名选择的后端。New 延迟到选中后才调用：
// 未选中的后端可能缺少密钥或本地服务，不应被构造。
type Backend[C any] struct {
	Name string
	New  func(ctx context.Context, cfg C) (Model, error)
}

// Registry 是模型后端的只读注册表（按 name 索引）。C 是构造后端所需的配置。
type Registry[C any] struct {
	byName map[string]Backend[C]
}

func NewRegistry[C any](backends ...Backend[C]) (Registry[C], error) {
	byName := make(map[string]Backend[C], len(backends))
	for _, b := range backends {
		name := strings.ToLower(strings.TrimSpace(b.Name))
		if name == "" {
			return Registry[C]{}, fmt.Errorf("backend.Name 不能为空")
		}
		if b.New == nil {
			return Registry[C]{}, fmt.Errorf("后端 %q 缺少构造函数", name)
		}
		if _, ok := byName[name]; ok {
			return Registry[C]{}, fmt.Errorf("重复的后端：%q", name)
		}
		b.Name = name
		byName[name] = b
	}
	return Registry[C]{byName: byName}, nil
}

func (r Registry[C]) Get(name string) (Backend[C], bool) {
	if r.byName == nil {
		return Backend[C]{}, false
	}
	b, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

// New 构造名为 name 的后端，并确认构造结果确实是该后端。
func (r Registry[C]) New(ctx context.Context, name string, cfg C) (Model, error) {
	b, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("未知后端：%q（可用：%s）", name, strings.Join(r.Names(), ", "))
	}
	m, err := b.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("后端 %q 构造结果为空", b.Name)
	}
	if got := strings.ToLower(m.Name()); got != b.Name {
		return nil, fmt.Errorf("后端 %q 构造出了 %q", b.Name, got)
	}
	return m, nil
}

// Names 返回已注册的后端名（升序）。
func (r Registry[C]) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
