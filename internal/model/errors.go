package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	StagePrepare = "prepare"
	StageRequest = "request"
	StageReply   = "reply"
)

// Error 是模型调用阶段的可追溯错误。
// 上层据此把失败归类为 model_failed，并生成可操作的提示。
type Error struct {
	Backend string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend=%s stage=%s: %v", e.Backend, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusError 表示后端返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

// ErrEmptyReply 表示后端成功返回但没有任何文本内容。
var ErrEmptyReply = errors.New("回复为空")

// Humanize 把模型错误转换为适合写入 report 的提示。
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	backend := "model"
	var me *Error
	if errors.As(err, &me) && strings.TrimSpace(me.Backend) != "" {
		backend = me.Backend
	}

	var hs *HTTPStatusError
	if errors.As(err, &hs) {
		switch {
		case hs.StatusCode == 401 || hs.StatusCode == 403:
			return fmt.Sprintf("%s 返回 HTTP %d（认证失败）。请检查 API key 或凭证配置。", backend, hs.StatusCode)
		case hs.StatusCode == 429:
			return fmt.Sprintf("%s 返回 HTTP 429（限流）。建议降低 concurrency 或稍后重试。", backend)
		case hs.StatusCode == 404:
			return fmt.Sprintf("%s 返回 HTTP 404（模型不存在或接口地址错误）：%s", backend, strings.TrimSpace(hs.Message))
		case hs.StatusCode >= 500:
			return fmt.Sprintf("%s 返回 HTTP %d（上游故障）。", backend, hs.StatusCode)
		default:
			return fmt.Sprintf("%s 返回 %v", backend, hs)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fmt.Sprintf("%s 调用超时。建议检查网络或调大 timeout。", backend)
	}
	if errors.Is(err, ErrEmptyReply) {
		return fmt.Sprintf("%s 返回了空回复。", backend)
	}
	if me != nil {
		return fmt.Sprintf("%s 调用失败（%s）：%v", backend, me.Stage, me.Err)
	}
	return err.Error()
}
