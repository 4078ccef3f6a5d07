// Package leaderboard 汇总多次评测运行，生成按准确率排序的排行榜。
package leaderboard

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/John-Robertt/dicebench/internal/domain"
)

const (
	BaselineName = "Random Baseline"
	BaselineNote = "Random guessing among the six possible outcomes"
)

type Entry struct {
	System     string    `json:"system"`
	Accuracy   float64   `json:"accuracy"`
	Total      int       `json:"total"`
	Note       string    `json:"note,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Baseline 是六面骰随机猜测的参照行（16.67%）。
func Baseline() Entry {
	return Entry{
		System:   BaselineName,
		Accuracy: math.Round(domain.RandomBaseline*100) / 100,
		Note:     BaselineNote,
	}
}

// Build 从运行摘要生成排行榜：
// - 每个系统（backend/model）只保留准确率最高的一次；同分取较新的一次
// - 失败（fatal，包括被中断）或没有任何已评测视频的运行不参与
// - 追加随机基线后按准确率降序、系统名升序排序
func Build(runs []domain.RunReport) []Entry {
	best := make(map[string]Entry, len(runs))
	for _, r := range runs {
		if r.Fatal != "" || r.Summary.Total == 0 {
			continue
		}
		sys := r.System()
		if sys == "" {
			continue
		}
		e := Entry{
			System:     sys,
			Accuracy:   r.Summary.Accuracy,
			Total:      r.Summary.Total,
			Note:       fmt.Sprintf("%s mode, %d/%d correct", r.Mode, r.Summary.Correct, r.Summary.Total),
			RunID:      r.RunID,
			FinishedAt: r.FinishedAt.UTC(),
		}
		prev, ok := best[sys]
		if !ok || e.Accuracy > prev.Accuracy || (e.Accuracy == prev.Accuracy && e.FinishedAt.After(prev.FinishedAt)) {
			best[sys] = e
		}
	}

	out := make([]Entry, 0, len(best)+1)
	for _, e := range best {
		out = append(out, e)
	}
	out = append(out, Baseline())
	Sort(out)
	return out
}

// Sort 按准确率降序、系统名升序（忽略大小写）排序。
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		return strings.ToLower(a.System) < strings.ToLower(b.System)
	})
}

// LoadReports 读取 report.json 文件。任一文件不可读或不是合法报告都会报错。
func LoadReports(paths []string) ([]domain.RunReport, error) {
	out := make([]domain.RunReport, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var rr domain.RunReport
		if err := json.Unmarshal(b, &rr); err != nil {
			return nil, fmt.Errorf("解析报告失败 %s：%w", p, err)
		}
		out = append(out, rr)
	}
	return out, nil
}
