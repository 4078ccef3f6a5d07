package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env 是来自环境变量的密钥与端点。
type Env struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OllamaHost    string `env:"OLLAMA_HOST"`
	AWSRegion     string `env:"AWS_REGION"`
	DatabaseURL   string `env:"DATABASE_URL"`
	LogLevel      string `env:"DICEBENCH_LOG_LEVEL" envDefault:"info"`
}

// LoadEnv 解析环境变量；dir 下若有 .env 文件，其中的值作为补充（进程环境优先）。
//
// 不修改进程环境。
func LoadEnv(dir string) (Env, error) {
	return loadEnv(dir, os.Environ())
}

func loadEnv(dir string, environ []string) (Env, error) {
	vars := map[string]string{}

	p := filepath.Join(dir, ".env")
	if dotenv, err := godotenv.Read(p); err == nil {
		for k, v := range dotenv {
			vars[k] = v
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Env{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return Env{}, &Error{Code: ErrCodeInvalid, Err: err}
	}
	return e, nil
}
