package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", &buf, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	log.Info("hidden")
	log.Warn("unmapped label", zap.String("video", "X1.webm"))
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("期望 1 行日志，实际 %d：%q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("日志不是 JSON：%v", err)
	}
	if m["msg"] != "unmapped label" || m["video"] != "X1.webm" || m["level"] != "warn" {
		t.Fatalf("日志字段不符合预期：%v", m)
	}
	if _, ok := m["ts"]; !ok {
		t.Fatalf("缺少 ts 字段：%v", m)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("", &buf, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	log.Info("run finished", zap.Int("total", 3))
	if !strings.Contains(buf.String(), "run finished") || !strings.Contains(buf.String(), `"total": 3`) {
		t.Fatalf("控制台输出不符合预期：%q", buf.String())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("loud", &bytes.Buffer{}, false); err == nil {
		t.Fatalf("期望未知级别报错")
	}
}
