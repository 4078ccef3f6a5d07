package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/dicebench/internal/domain"
	"github.com/John-Robertt/dicebench/internal/model"
)

// ErrCodeInvalid 表示配置文件无法读取/解析，或字段、环境不合法。
const ErrCodeInvalid = domain.ErrCodeConfigInvalid

// FileName 是数据集目录（或 cwd）下的可选配置文件名。
const FileName = "dicebench.json"

const (
	DefaultBackend     = "openai"
	DefaultTargetFPS   = 30.0
	DefaultConcurrency = 1
	DefaultTimeout     = 120 * time.Second
	DefaultMaxDim      = 768
	DefaultJPEGQuality = 80

	maxConcurrency = 32
)

// MaxTokensLimit 是 max_tokens 的上限；各后端都能无损表示（bedrock 使用 int32）。
const MaxTokensLimit = 1 << 20

// CLIArgs 是 `dicebench run` 暴露的参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --concurrency=1 必须能覆盖配置文件里的 4。
type CLIArgs struct {
	Path string

	Backend    string
	BackendSet bool

	Model    string
	ModelSet bool

	Mode    string
	ModeSet bool

	FPS    float64
	FPSSet bool

	Concurrency    int
	ConcurrencySet bool

	Out    string
	OutSet bool

	DatabaseURL    string
	DatabaseURLSet bool

	Prompt    string
	PromptSet bool

	ReplayFrom    string
	ReplayFromSet bool
}

// FileConfig 对应 dicebench.json 的解析结构。
type FileConfig struct {
	Path           string       `json:"path"`
	Backend        string       `json:"backend"`
	Model          string       `json:"model"`
	Mode           string       `json:"mode"`
	FPS            *float64     `json:"fps"`
	Concurrency    int          `json:"concurrency"`
	Out            string       `json:"out"`
	Prompt         string       `json:"prompt"`
	ReplayFrom     string       `json:"replay_from"`
	Exts           []string     `json:"exts"`
	ExcludeDirs    []string     `json:"exclude_dirs"`
	MaxDim         *int         `json:"max_dim"`
	JPEGQuality    int          `json:"jpeg_quality"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	ImageDetail    string       `json:"image_detail"`
	MaxTokens      int          `json:"max_tokens"`
	Temperature    *float64     `json:"temperature"`
	Proxy          *ProxyConfig `json:"proxy"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string

	Backend string
	// Model 为空表示使用后端默认模型；replay 时形如 "openai/gpt-4o"。
	Model string
	Mode  model.Mode

	TargetFPS   float64
	Concurrency int
	Timeout     time.Duration

	OutDir      string
	DatabaseURL string
	Prompt      string
	ReplayFrom  string

	Exts        []string
	ExcludeDirs []string

	// MaxDim 为负数表示不缩放。
	MaxDim      int
	JPEGQuality int

	ImageDetail string
	MaxTokens   int
	// Temperature 为 0 表示使用后端默认值。
	Temperature float64

	ProxyURL string

	Env Env
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s：%q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%q 无效", e.Code, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 path：读取 <path>/dicebench.json（可选）
// 2) CLI 未提供 path：读取 <cwd>/dicebench.json（可选）；其中的 path 决定数据集目录，缺省为 cwd
//
// 覆盖优先级：CLI > 配置文件 > 默认值。
// 相对路径：CLI 给出的相对 cwd，配置文件给出的相对配置文件所在目录。
func LoadEffective(cwd string, cli CLIArgs, env Env) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		root    string
		cfgPath string
		fc      FileConfig
	)
	if strings.TrimSpace(cli.Path) != "" {
		root = absCleanFrom(cwdAbs, cli.Path)
		cfgPath = filepath.Join(root, FileName)
		if fc, _, err = readFileConfig(cfgPath); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		if fc, _, err = readFileConfig(cfgPath); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		root = cwdAbs
		if strings.TrimSpace(fc.Path) != "" {
			root = absCleanFrom(cwdAbs, fc.Path)
		}
	}

	if fi, err := os.Stat(root); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: root, Err: fmt.Errorf("数据集目录不可用：%w", err)}
	} else if !fi.IsDir() {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: root, Err: errors.New("数据集路径不是目录")}
	}

	return merge(root, cwdAbs, cli, fc, env, cfgPath)
}

func merge(root, cwdAbs string, cli CLIArgs, fc FileConfig, env Env, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	cfgDir := filepath.Dir(cfgPath)

	backend := pick(cli.BackendSet, cli.Backend, fc.Backend, DefaultBackend)
	backend = strings.ToLower(strings.TrimSpace(backend))
	if err := validateBackend(backend); err != nil {
		return invalid(err)
	}

	modelName := strings.TrimSpace(pick(cli.ModelSet, cli.Model, fc.Model, ""))

	// bedrock 默认直接发送视频，其余后端只能发送帧。
	defaultMode := string(model.ModeFrames)
	if backend == "bedrock" {
		defaultMode = string(model.ModeVideo)
	}
	mode, err := model.ParseMode(pick(cli.ModeSet, cli.Mode, fc.Mode, defaultMode))
	if err != nil {
		return invalid(err)
	}

	fps := DefaultTargetFPS
	if cli.FPSSet {
		fps = cli.FPS
	} else if fc.FPS != nil {
		fps = *fc.FPS
	}
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return invalid(fmt.Errorf("fps 必须为正数，实际 %v", fps))
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	timeout := DefaultTimeout
	if fc.TimeoutSeconds < 0 {
		return invalid(fmt.Errorf("timeout_seconds 不能为负数"))
	}
	if fc.TimeoutSeconds > 0 {
		timeout = time.Duration(fc.TimeoutSeconds) * time.Second
	}

	outDir := pathFrom(cli.OutSet, cli.Out, fc.Out, cwdAbs, cfgDir)

	replayFrom := pathFrom(cli.ReplayFromSet, cli.ReplayFrom, fc.ReplayFrom, cwdAbs, cfgDir)
	if backend == "replay" {
		if replayFrom == "" {
			replayFrom = outDir
		}
		if replayFrom == "" {
			return invalid(errors.New("backend=replay 需要 --replay-from（或 --out）指向记录目录"))
		}
		if b, m, ok := strings.Cut(modelName, "/"); !ok || strings.TrimSpace(b) == "" || strings.TrimSpace(m) == "" {
			return invalid(fmt.Errorf("backend=replay 需要 --model 形如 <backend>/<model>，实际 %q", modelName))
		}
	}

	dbURL := strings.TrimSpace(env.DatabaseURL)
	if cli.DatabaseURLSet {
		dbURL = strings.TrimSpace(cli.DatabaseURL)
	}

	prompt := pick(cli.PromptSet, cli.Prompt, fc.Prompt, "")

	maxDim := DefaultMaxDim
	if fc.MaxDim != nil {
		maxDim = *fc.MaxDim
		if maxDim == 0 {
			maxDim = -1
		}
	}

	quality := fc.JPEGQuality
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	if quality < 1 || quality > 100 {
		return invalid(fmt.Errorf("jpeg_quality 必须在 [1,100]，实际 %d", quality))
	}

	detail := strings.ToLower(strings.TrimSpace(fc.ImageDetail))
	switch detail {
	case "", "low", "high", "auto":
	default:
		return invalid(fmt.Errorf("image_detail 只能是 low/high/auto，实际 %q", fc.ImageDetail))
	}

	temperature := 0.0
	if fc.Temperature != nil {
		temperature = *fc.Temperature
		if temperature < 0 || temperature > 2 {
			return invalid(fmt.Errorf("temperature 必须在 [0,2]，实际 %v", temperature))
		}
	}
	if fc.MaxTokens < 0 || fc.MaxTokens > MaxTokensLimit {
		return invalid(fmt.Errorf("max_tokens 必须在 [0,%d]，实际 %d", MaxTokensLimit, fc.MaxTokens))
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Errorf("proxy.url 无效：%q", proxyURL))
		}
	}

	excludes := append([]string(nil), fc.ExcludeDirs...)
	if outDir != "" {
		// 输出目录可能位于数据集内部：回复记录不能被当作视频再次扫描。
		excludes = append(excludes, outDir)
	}

	return EffectiveConfig{
		Path:        root,
		Backend:     backend,
		Model:       modelName,
		Mode:        mode,
		TargetFPS:   fps,
		Concurrency: concurrency,
		Timeout:     timeout,
		OutDir:      outDir,
		DatabaseURL: dbURL,
		Prompt:      prompt,
		ReplayFrom:  replayFrom,
		Exts:        append([]string(nil), fc.Exts...),
		ExcludeDirs: excludes,
		MaxDim:      maxDim,
		JPEGQuality: quality,
		ImageDetail: detail,
		MaxTokens:   fc.MaxTokens,
		Temperature: temperature,
		ProxyURL:    proxyURL,
		Env:         env,
	}, nil
}

func validateBackend(b string) error {
	switch b {
	case "openai", "ollama", "bedrock", "replay":
		return nil
	case "":
		return fmt.Errorf("backend 不能为空")
	default:
		return fmt.Errorf("backend 只能是 openai/ollama/bedrock/replay，实际是 %q", b)
	}
}

// pick 实现 CLI > 配置文件 > 默认值。
func pick(set bool, cli, file, def string) string {
	if set {
		return cli
	}
	if strings.TrimSpace(file) != "" {
		return file
	}
	return def
}

func pathFrom(set bool, cli, file, cwd, cfgDir string) string {
	if set {
		return absCleanFrom(cwd, cli)
	}
	return absCleanFrom(cfgDir, file)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；空串保持为空。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
