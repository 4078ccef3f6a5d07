package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/dicebench/internal/app/run"
	"github.com/John-Robertt/dicebench/internal/config"
	"github.com/John-Robertt/dicebench/internal/domain"
	"github.com/John-Robertt/dicebench/internal/model"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：模型调用很慢时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	correct int
	failed  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] dicebench run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  backend: %s\n", eff.Backend)
	fmt.Fprintf(p.w, "  model: %s\n", orDefault(eff.Model, "(后端默认)"))
	fmt.Fprintf(p.w, "  mode: %s\n", eff.Mode)
	if eff.Mode == model.ModeFrames {
		fmt.Fprintf(p.w, "  fps: %s  max_dim: %s  jpeg_quality: %d\n",
			strconv.FormatFloat(eff.TargetFPS, 'g', -1, 64), formatMaxDim(eff.MaxDim), eff.JPEGQuality)
	}
	fmt.Fprintf(p.w, "  concurrency: %d  timeout: %s\n", eff.Concurrency, eff.Timeout)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  exts: %s  exclude_dirs: %s\n", formatStringListJSON(eff.Exts), formatStringListJSON(eff.ExcludeDirs))
	if eff.Backend == "replay" {
		fmt.Fprintf(p.w, "  replay_from: %s\n", eff.ReplayFrom)
	}
	fmt.Fprintf(p.w, "  database: %s\n", formatDatabase(eff.DatabaseURL))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "resolve":
		fmt.Fprintf(p.w, "标签: mapped=%d skipped=%d (%s)\n",
			intField(fields, "mapped"), intField(fields, "skipped"), formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total")
		fmt.Fprintf(p.w, "执行: workers=%d total=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.EvaluationResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	if res.Correct {
		p.correct++
	}
	if res.Predicted == nil {
		p.failed++
	}

	status := resultStatus(res)
	switch {
	case res.ErrorCode != "":
		fmt.Fprintf(p.w, "[%d/%d] %s %s expected=%d %s: %s (%s)\n",
			idx, total, res.Video, status, res.Expected, res.ErrorCode, truncate(res.Error, 160), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s expected=%d predicted=%s frames=%d (%s)\n",
			idx, total, res.Video, status, res.Expected, formatPredicted(res.Predicted), res.Frames, formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, correct, failed, active int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printProgressLocked(done, total, correct, failed, active, elapsed)
}

func (p *progressUI) printProgressLocked(done, total, correct, failed, active int, elapsed time.Duration) {
	fmt.Fprintf(p.w, "进度: done=%d/%d correct=%d failed=%d active=%d elapsed=%s\n",
		done, total, correct, failed, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					if remain := p.total - p.done; remain < active {
						active = remain
					}
					p.printProgressLocked(p.done, p.total, p.correct, p.failed, active, time.Since(p.startedAt))
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// resultStatus 把单条结果归为 OK / MISS / FAIL。
func resultStatus(r domain.EvaluationResult) string {
	switch {
	case r.Correct:
		return "OK"
	case r.Predicted != nil:
		return "MISS"
	default:
		return "FAIL"
	}
}

func formatPredicted(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func formatMaxDim(n int) string {
	if n <= 0 {
		return "off"
	}
	return strconv.Itoa(n)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// formatDatabase 只展示 host/db，不回显密码。
func formatDatabase(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "on"
	}
	return "on (" + u.Host + u.Path + ")"
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
