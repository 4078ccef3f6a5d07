package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/dicebench/internal/config"
	"github.com/John-Robertt/dicebench/internal/infra/cache"
	"github.com/John-Robertt/dicebench/internal/infra/httpx"
	"github.com/John-Robertt/dicebench/internal/model"
	"github.com/John-Robertt/dicebench/internal/model/bedrock"
	"github.com/John-Robertt/dicebench/internal/model/ollama"
	"github.com/John-Robertt/dicebench/internal/model/openai"
	"github.com/John-Robertt/dicebench/internal/model/replay"
)

type backendRegistry = model.Registry[config.EffectiveConfig]

func newBackendRegistry() (backendRegistry, error) {
	return model.NewRegistry(
		model.Backend[config.EffectiveConfig]{Name: openai.Name, New: newOpenAI},
		model.Backend[config.EffectiveConfig]{Name: ollama.Name, New: newOllama},
		model.Backend[config.EffectiveConfig]{Name: bedrock.Name, New: newBedrock},
		model.Backend[config.EffectiveConfig]{Name: replay.Name, New: newReplay},
	)
}

// buildModel 只构造本次运行选中的后端（其余后端可能缺少密钥）。
func buildModel(ctx context.Context, eff config.EffectiveConfig) (model.Model, error) {
	reg, err := newBackendRegistry()
	if err != nil {
		return nil, err
	}
	return reg.New(ctx, eff.Backend, eff)
}

func newOpenAI(_ context.Context, eff config.EffectiveConfig) (model.Model, error) {
	hc, err := httpClient(eff)
	if err != nil {
		return nil, err
	}
	c, err := openai.New(openai.Config{
		APIKey:      eff.Env.OpenAIAPIKey,
		BaseURL:     eff.Env.OpenAIBaseURL,
		Model:       eff.Model,
		Detail:      eff.ImageDetail,
		MaxTokens:   eff.MaxTokens,
		Temperature: float32(eff.Temperature),
		HTTPClient:  hc,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newOllama(_ context.Context, eff config.EffectiveConfig) (model.Model, error) {
	hc, err := httpClient(eff)
	if err != nil {
		return nil, err
	}
	c, err := ollama.New(ollama.Config{
		Host:        eff.Env.OllamaHost,
		Model:       eff.Model,
		Temperature: eff.Temperature,
		MaxTokens:   eff.MaxTokens,
		HTTPClient:  hc,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newBedrock(ctx context.Context, eff config.EffectiveConfig) (model.Model, error) {
	// config 已把 max_tokens 限制在 config.MaxTokensLimit 以内，转换不会溢出。
	c, err := bedrock.New(ctx, bedrock.Config{
		Region:      eff.Env.AWSRegion,
		Model:       eff.Model,
		Temperature: float32(eff.Temperature),
		MaxTokens:   int32(eff.MaxTokens),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newReplay(_ context.Context, eff config.EffectiveConfig) (model.Model, error) {
	backend, name, _ := strings.Cut(eff.Model, "/")
	c, err := replay.New(cache.New(eff.ReplayFrom, true), backend, name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func httpClient(eff config.EffectiveConfig) (*http.Client, error) {
	hc, err := httpx.NewClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP client 失败：%w", err)
	}
	return hc, nil
}
