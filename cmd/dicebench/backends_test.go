package main

import (
	"context"
	"strings"
	"testing"

	"github.com/John-Robertt/dicebench/internal/config"
	"github.com/John-Robertt/dicebench/internal/model/replay"
)

func TestBackendRegistry_Names(t *testing.T) {
	reg, err := newBackendRegistry()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := strings.Join(reg.Names(), ","); got != "bedrock,ollama,openai,replay" {
		t.Fatalf("已注册后端不符合预期：%q", got)
	}
}

func TestBuildModel_SelectsBackend(t *testing.T) {
	m, err := buildModel(context.Background(), config.EffectiveConfig{
		Backend:    "replay",
		Model:      "openai/gpt-4o",
		ReplayFrom: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if m.Name() != replay.Name || m.Model() != "openai/gpt-4o" {
		t.Fatalf("期望 replay openai/gpt-4o，实际 %q %q", m.Name(), m.Model())
	}

	m, err = buildModel(context.Background(), config.EffectiveConfig{Backend: "ollama"})
	if err != nil {
		t.Fatalf("ollama 不需要密钥，不期望错误：%v", err)
	}
	if m.Name() != "ollama" {
		t.Fatalf("期望 ollama，实际 %q", m.Name())
	}
}

func TestBuildModel_OpenAIRequiresKey(t *testing.T) {
	_, err := buildModel(context.Background(), config.EffectiveConfig{Backend: "openai"})
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("缺少 OPENAI_API_KEY 应报错，实际 %v", err)
	}
}

func TestBuildModel_UnknownBackend(t *testing.T) {
	_, err := buildModel(context.Background(), config.EffectiveConfig{Backend: "nope"})
	if err == nil || !strings.Contains(err.Error(), "未知后端") {
		t.Fatalf("未知后端应报错，实际 %v", err)
	}
}
