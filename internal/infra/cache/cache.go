package cache

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/dicebench/internal/infra/fsx"
)

// Store 提供 <root>/replies/ 下的模型回复记录读写。
//
// 布局：<root>/replies/<backend>/<model>/<视频相对路径（含扩展名）>.txt
//
// 约束：
// - replay：只允许读（ReadOnly=true）
// - run --out：允许写（ReadOnly=false）
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// ReplyPath 返回 (backend, model, video) 对应回复记录的路径。
func (s Store) ReplyPath(backend, model, video string) (string, error) {
	b, err := cleanBackend(backend)
	if err != nil {
		return "", err
	}
	m, err := cleanModel(model)
	if err != nil {
		return "", err
	}
	rel, err := cleanVideo(video)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "replies", b, m, filepath.FromSlash(rel)+".txt"), nil
}

// ReadReply 读取回复记录；不存在时 ok=false 且 err=nil。
func (s Store) ReadReply(backend, model, video string) (string, bool, error) {
	p, err := s.ReplyPath(backend, model, video)
	if err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}

// WriteReply 原子写入回复记录（覆盖旧记录）。
func (s Store) WriteReply(backend, model, video, reply string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	p, err := s.ReplyPath(backend, model, video)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(p), filepath.Base(p), []byte(reply))
}

var backendNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanBackend(b string) (string, error) {
	b = strings.ToLower(strings.TrimSpace(b))
	if b == "" {
		return "", fmt.Errorf("backend 不能为空")
	}
	if !backendNameRE.MatchString(b) {
		return "", fmt.Errorf("非法 backend：%q", b)
	}
	return b, nil
}

var unsafeModelRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// cleanModel 把模型名变成可移植的目录名（例如 "us.amazon.nova-pro-v1:0" -> "us.amazon.nova-pro-v1_0"）。
func cleanModel(m string) (string, error) {
	m = strings.TrimSpace(m)
	if m == "" {
		return "", fmt.Errorf("model 不能为空")
	}
	m = unsafeModelRE.ReplaceAllString(m, "_")
	if m == "." || m == ".." {
		return "", fmt.Errorf("非法 model：%q", m)
	}
	return m, nil
}

func cleanVideo(v string) (string, error) {
	v = strings.TrimSpace(filepath.ToSlash(v))
	if v == "" {
		return "", fmt.Errorf("video 不能为空")
	}
	if path.IsAbs(v) || filepath.IsAbs(v) {
		return "", fmt.Errorf("video 必须是相对路径：%q", v)
	}
	v = path.Clean(v)
	if v == "." || v == ".." || strings.HasPrefix(v, "../") {
		return "", fmt.Errorf("video 路径越界：%q", v)
	}
	// 保留扩展名：同名不同容器（FEA.webm / FEA.mp4）必须各有一份记录。
	return v, nil
}
