// Package label 从数据集文件名推导骰子的期望点数（ground truth）。
package label

import (
	"path/filepath"
	"strings"

	"github.com/John-Robertt/dicebench/internal/domain"
)

type rule struct {
	prefix  string
	outcome domain.Outcome
}

// rules 按顺序匹配，第一条命中即返回。
// 更长/更具体的前缀必须排在会遮蔽它的短前缀之前（TV 在 T 之前）。
var rules = []rule{
	{"FE", 5},
	{"FY", 4},
	{"S", 6},
	{"TV", 2},
	{"T", 3},
	{"E", 1},
	{"O", 1},
}

// Resolve 把文件名（可带目录与扩展名）映射为期望点数。
// 无规则命中时返回 ok=false；不会报错，也不会猜测。
func Resolve(name string) (domain.Outcome, bool) {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToUpper(base)
	if base == "" || base == "." {
		return domain.OutcomeUnknown, false
	}

	for _, r := range rules {
		if strings.HasPrefix(base, r.prefix) {
			return r.outcome, true
		}
	}
	return domain.OutcomeUnknown, false
}

// UnmatchedError 表示文件名不符合任何前缀规则（该视频应被跳过）。
type UnmatchedError struct {
	Name string
}

func (e *UnmatchedError) Error() string {
	return "无法从文件名推导期望点数：" + e.Name
}

// Extract 是 Resolve 在流水线中的形态：失败时返回 *UnmatchedError。
func Extract(v domain.VideoFile) (domain.Outcome, error) {
	name := v.Base
	if name == "" {
		name = filepath.Base(v.AbsPath)
	}
	o, ok := Resolve(name)
	if !ok {
		n := v.RelPath
		if n == "" {
			n = name
		}
		return domain.OutcomeUnknown, &UnmatchedError{Name: n}
	}
	return o, nil
}
