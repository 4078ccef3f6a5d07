package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/dicebench/internal/model"
)

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{}, Env{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != cwd {
		t.Fatalf("期望 path=%q，实际=%q", cwd, eff.Path)
	}
	if eff.Backend != DefaultBackend || eff.Mode != model.ModeFrames {
		t.Fatalf("期望 backend=openai mode=frames，实际 %q %q", eff.Backend, eff.Mode)
	}
	if eff.TargetFPS != DefaultTargetFPS || eff.Concurrency != 1 || eff.Timeout != DefaultTimeout {
		t.Fatalf("默认值不符合预期：%+v", eff)
	}
	if eff.MaxDim != DefaultMaxDim || eff.JPEGQuality != DefaultJPEGQuality {
		t.Fatalf("编码默认值不符合预期：max_dim=%d quality=%d", eff.MaxDim, eff.JPEGQuality)
	}
	if eff.OutDir != "" || len(eff.ExcludeDirs) != 0 {
		t.Fatalf("未指定 out 时不应有排除目录：%+v", eff.ExcludeDirs)
	}
}

func TestLoadEffective_BedrockDefaultsToVideo(t *testing.T) {
	eff, err := LoadEffective(t.TempDir(), CLIArgs{Backend: "Bedrock", BackendSet: true}, Env{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Backend != "bedrock" || eff.Mode != model.ModeVideo {
		t.Fatalf("期望 bedrock/video，实际 %q/%q", eff.Backend, eff.Mode)
	}
}

func TestLoadEffective_MergeOrder(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{
		"path": "videos",
		"backend": "ollama",
		"model": "llava:13b",
		"fps": 2,
		"concurrency": 4,
		"out": "results",
		"max_dim": 0,
		"timeout_seconds": 30
	}`))
	mkdir(t, filepath.Join(cwd, "videos"))

	eff, err := LoadEffective(cwd, CLIArgs{}, Env{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != filepath.Join(cwd, "videos") {
		t.Fatalf("期望 path 来自配置文件，实际 %q", eff.Path)
	}
	if eff.Backend != "ollama" || eff.Model != "llava:13b" || eff.TargetFPS != 2 || eff.Concurrency != 4 {
		t.Fatalf("配置文件值未生效：%+v", eff)
	}
	if eff.OutDir != filepath.Join(cwd, "results") {
		t.Fatalf("配置文件中的 out 应相对配置文件目录，实际 %q", eff.OutDir)
	}
	if eff.MaxDim != -1 {
		t.Fatalf("max_dim=0 表示不缩放，实际 %d", eff.MaxDim)
	}
	if eff.Timeout != 30*time.Second {
		t.Fatalf("期望 timeout=30s，实际 %v", eff.Timeout)
	}

	// CLI 显式指定，则覆盖配置文件（包括“设回默认值”）。
	eff2, err := LoadEffective(cwd, CLIArgs{
		Backend: "openai", BackendSet: true,
		Model: "gpt-4o-mini", ModelSet: true,
		FPS: 1, FPSSet: true,
		Concurrency: 1, ConcurrencySet: true,
		Out: "elsewhere", OutSet: true,
	}, Env{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Backend != "openai" || eff2.Model != "gpt-4o-mini" || eff2.TargetFPS != 1 || eff2.Concurrency != 1 {
		t.Fatalf("CLI 值未生效：%+v", eff2)
	}
	if eff2.OutDir != filepath.Join(cwd, "elsewhere") {
		t.Fatalf("CLI 中的 out 应相对 cwd，实际 %q", eff2.OutDir)
	}
	if len(eff2.ExcludeDirs) != 1 || eff2.ExcludeDirs[0] != eff2.OutDir {
		t.Fatalf("输出目录应被排除扫描：%v", eff2.ExcludeDirs)
	}
}

func TestLoadEffective_CLIPathReadsConfigThere(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "root")
	mkdir(t, root)
	writeFile(t, filepath.Join(root, FileName), []byte(`{"exts":[".mp4"],"prompt":"guess"}`))

	eff, err := LoadEffective(cwd, CLIArgs{Path: "root"}, Env{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != root {
		t.Fatalf("期望 path=%q，实际=%q", root, eff.Path)
	}
	if len(eff.Exts) != 1 || eff.Exts[0] != ".mp4" || eff.Prompt != "guess" {
		t.Fatalf("配置文件值未生效：%+v", eff)
	}
}

func TestLoadEffective_DatabaseURLPrecedence(t *testing.T) {
	cwd := t.TempDir()
	env := Env{DatabaseURL: "postgres://env"}

	eff, err := LoadEffective(cwd, CLIArgs{}, env)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.DatabaseURL != "postgres://env" {
		t.Fatalf("期望使用环境变量，实际 %q", eff.DatabaseURL)
	}

	eff, err = LoadEffective(cwd, CLIArgs{DatabaseURL: "", DatabaseURLSet: true}, env)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.DatabaseURL != "" {
		t.Fatalf("--database-url= 应能关闭数据库写入，实际 %q", eff.DatabaseURL)
	}
}

func TestLoadEffective_Replay(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{Backend: "replay", BackendSet: true, Model: "gpt-4o", ModelSet: true, Out: "o", OutSet: true}, Env{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("model 缺少 backend 前缀应报错，实际 %v", err)
	}

	_, err = LoadEffective(cwd, CLIArgs{Backend: "replay", BackendSet: true, Model: "openai/gpt-4o", ModelSet: true}, Env{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("缺少记录目录应报错，实际 %v", err)
	}

	eff, err := LoadEffective(cwd, CLIArgs{Backend: "replay", BackendSet: true, Model: "openai/gpt-4o", ModelSet: true, Out: "o", OutSet: true}, Env{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ReplayFrom != filepath.Join(cwd, "o") {
		t.Fatalf("replay_from 应回退到 out，实际 %q", eff.ReplayFrom)
	}
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := map[string]string{
		"backend":     `{"backend":"nope"}`,
		"mode":        `{"mode":"audio"}`,
		"fps":         `{"fps":0}`,
		"quality":     `{"jpeg_quality":101}`,
		"detail":      `{"image_detail":"ultra"}`,
		"temperature": `{"temperature":3}`,
		"proxy":       `{"proxy":{"url":"127.0.0.1:8080"}}`,
		"timeout":     `{"timeout_seconds":-1}`,
		"max_tokens":  `{"max_tokens":-1}`,
		"max_tokens2": `{"max_tokens":4294967296}`,
		"json":        `{`,
	}
	for name, body := range cases {
		cwd := t.TempDir()
		writeFile(t, filepath.Join(cwd, FileName), []byte(body))
		_, err := LoadEffective(cwd, CLIArgs{}, Env{})
		if Code(err) != ErrCodeInvalid {
			t.Fatalf("%s：期望 %q，实际 err=%v (code=%q)", name, ErrCodeInvalid, err, Code(err))
		}
	}
}

func TestLoadEffective_MaxTokensBounds(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"max_tokens":1048576}`))
	eff, err := LoadEffective(cwd, CLIArgs{}, Env{})
	if err != nil {
		t.Fatalf("上限值应被接受：%v", err)
	}
	if eff.MaxTokens != MaxTokensLimit {
		t.Fatalf("期望 max_tokens=%d，实际 %d", MaxTokensLimit, eff.MaxTokens)
	}

	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"max_tokens":1048577}`))
	if _, err := LoadEffective(cwd, CLIArgs{}, Env{}); Code(err) != ErrCodeInvalid {
		t.Fatalf("超过上限应报 %q，实际 %v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_MissingDataset(t *testing.T) {
	cwd := t.TempDir()
	_, err := LoadEffective(cwd, CLIArgs{Path: "nope"}, Env{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}

	writeFile(t, filepath.Join(cwd, "file.webm"), []byte("x"))
	_, err = LoadEffective(cwd, CLIArgs{Path: "file.webm"}, Env{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestLoadEnv_DotEnvFillsGaps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-dotenv\nOLLAMA_HOST=http://gpu:11434\n"))

	e, err := loadEnv(dir, []string{"OPENAI_API_KEY=sk-process", "AWS_REGION=us-west-2"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if e.OpenAIAPIKey != "sk-process" {
		t.Fatalf("进程环境应优先于 .env，实际 %q", e.OpenAIAPIKey)
	}
	if e.OllamaHost != "http://gpu:11434" || e.AWSRegion != "us-west-2" {
		t.Fatalf("环境值不符合预期：%+v", e)
	}
	if e.LogLevel != "info" {
		t.Fatalf("期望默认日志级别 info，实际 %q", e.LogLevel)
	}
}

func TestLoadEnv_NoDotEnv(t *testing.T) {
	e, err := loadEnv(t.TempDir(), []string{"DICEBENCH_LOG_LEVEL=debug"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if e.LogLevel != "debug" {
		t.Fatalf("期望 debug，实际 %q", e.LogLevel)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
}
