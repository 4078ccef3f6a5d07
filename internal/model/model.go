// Package model 定义多模态模型后端的统一接口。
package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/John-Robertt/dicebench/internal/frames"
)

// DefaultPrompt 要求模型只回答一个 1..6 的数字。
const DefaultPrompt = "These frames are from a video of a dice being thrown. " +
	"Based on these frames, what number will the die land on? " +
	"Please respond with ONLY the number (1-6). Even if you are not sure make sure to guess. " +
	"You need to **ALWAYS** give a number even if you are not sure. " +
	"And **only** reply with a number and nothing else."

// Mode 决定把视频以什么形式交给模型。
type Mode string

const (
	ModeFrames Mode = "frames"
	ModeVideo  Mode = "video"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFrames:
		return ModeFrames, nil
	case ModeVideo:
		return ModeVideo, nil
	default:
		return "", fmt.Errorf("未知 mode：%q（可选 frames|video）", s)
	}
}

// Video 是原始视频字节与容器格式（例如 "webm"）。
type Video struct {
	Data   []byte
	Format string
}

// Input 是一次预测请求；Frames 与 Video 按 Mode 二选一。
type Input struct {
	// Key 标识被评估的视频（相对路径），replay 后端用它查找记录。
	Key    string
	Prompt string
	Frames []frames.Frame
	Video  *Video
}

// Model 把“供应商差异”限制在各自的子包内部；驱动只依赖统一接口。
//
// 约束：
// - Predict 只返回原始回复文本，不做解析（解析由 predict 包统一完成）
// - Predict 不做重试（重试由 httpx 或 SDK 统一实现）
// - 实例在 main 中构造一次并显式传递，必须可并发调用
type Model interface {
	Name() string
	Model() string
	Supports(m Mode) bool
	Predict(ctx context.Context, in Input) (string, error)
}

// PromptOrDefault 返回 in.Prompt，为空时返回 DefaultPrompt。
func (in Input) PromptOrDefault() string {
	if strings.TrimSpace(in.Prompt) == "" {
		return DefaultPrompt
	}
	return in.Prompt
}

// Offline 由不需要视频内容的后端实现（例如 replay）；驱动据此跳过解码与读取。
type Offline interface {
	Offline() bool
}

// NeedsMedia 报告驱动是否需要为 m 准备帧或视频字节。
func NeedsMedia(m Model) bool {
	if o, ok := m.(Offline); ok && o.Offline() {
		return false
	}
	return true
}
