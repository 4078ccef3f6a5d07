package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	ErrCodeUnmappedLabel     = "unmapped_label"
	ErrCodeInvalidPrediction = "invalid_prediction"
	ErrCodeModelFailed       = "model_failed"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeConfigInvalid     = "config_invalid"
)

// FatalInterrupted 是运行被取消（例如 Ctrl+C）时 RunReport.Fatal 的取值。
// 中断的运行不计入排行榜，也不写入数据库。
const FatalInterrupted = "运行已中断"

// InvalidPredictionNote 是无法解析模型回复时附在结果上的说明。
const InvalidPredictionNote = "Failed to get valid prediction"

// EvaluationResult 是单个视频的评测结果；构造后不再修改。
type EvaluationResult struct {
	Video     string `json:"video"`
	Expected  int    `json:"expected"`
	Predicted *int   `json:"predicted"`
	Correct   bool   `json:"correct"`

	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	// Reply 是模型原始回复（便于事后排查 invalid_prediction）。
	Reply      string `json:"reply,omitempty"`
	Frames     int    `json:"frames"`
	DurationMs int64  `json:"duration_ms"`
}

// Judge 比较期望值与预测值。predicted 无效时 correct=false 并附上说明。
func Judge(video string, expected, predicted Outcome) EvaluationResult {
	r := EvaluationResult{
		Video:     video,
		Expected:  int(expected),
		Predicted: predicted.Int(),
	}
	if !predicted.Valid() {
		r.ErrorCode = ErrCodeInvalidPrediction
		r.Error = InvalidPredictionNote
		return r
	}
	r.Correct = predicted == expected
	return r
}

// Failed 构造一个“未得到预测”的结果（模型调用失败、视频无法读取等）。
func Failed(video string, expected Outcome, code, msg string) EvaluationResult {
	return EvaluationResult{
		Video:     video,
		Expected:  int(expected),
		ErrorCode: code,
		Error:     msg,
	}
}

// SkippedVideo 记录未参与统计的视频（文件名无法映射到点数）。
type SkippedVideo struct {
	Video  string `json:"video"`
	Reason string `json:"reason"`
}

// RunReport 是对外稳定输出（report.json / stdout JSON / 数据库）的结构。
type RunReport struct {
	RunID     string  `json:"run_id"`
	Backend   string  `json:"backend"`
	Model     string  `json:"model"`
	Mode      string  `json:"mode"`
	Path      string  `json:"path"`
	TargetFPS float64 `json:"target_fps"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary Summary            `json:"summary"`
	Results []EvaluationResult `json:"results"`
	Skipped []SkippedVideo     `json:"skipped"`

	// Fatal 非空表示运行在扫描前后就失败了（例如数据集目录不可读）。
	Fatal string `json:"fatal,omitempty"`
}

// Summary 只统计已映射到期望点数的视频；Skipped 不计入 Total。
type Summary struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Accuracy float64 `json:"accuracy"`
}

// System 是排行榜中使用的系统名，形如 "openai/gpt-4o"。
func (r RunReport) System() string {
	b := strings.TrimSpace(r.Backend)
	m := strings.TrimSpace(r.Model)
	switch {
	case b == "":
		return m
	case m == "":
		return b
	default:
		return b + "/" + m
	}
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) results/skipped 按视频路径稳定排序（并发执行时完成顺序不确定）
// 3) summary 由 results 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Results == nil {
		r.Results = []EvaluationResult{}
	}
	if r.Skipped == nil {
		r.Skipped = []SkippedVideo{}
	}
	sort.SliceStable(r.Results, func(i, j int) bool { return r.Results[i].Video < r.Results[j].Video })
	sort.SliceStable(r.Skipped, func(i, j int) bool { return r.Skipped[i].Video < r.Skipped[j].Video })

	var s Summary
	for _, it := range r.Results {
		s.Total++
		if it.Correct {
			s.Correct++
		}
		if it.Predicted == nil {
			s.Failed++
		}
	}
	s.Skipped = len(r.Skipped)
	s.Accuracy = Accuracy(s.Correct, s.Total)
	r.Summary = s
}

// Accuracy 返回百分比（保留两位小数）；total=0 时为 0。
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*100*100) / 100
}
