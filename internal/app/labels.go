package app

import (
	"errors"
	"path/filepath"

	"github.com/John-Robertt/dicebench/internal/domain"
	"github.com/John-Robertt/dicebench/internal/label"
)

// Job 是一个已知期望点数、等待评测的视频。
type Job struct {
	File     domain.VideoFile
	Expected domain.Outcome
}

// Key 是视频在报告与回复记录中的标识（正斜杠分隔的相对路径）。
func (j Job) Key() string { return filepath.ToSlash(j.File.RelPath) }

// ResolveLabels 为扫描到的视频推导期望点数。
//
// - 文件名无法映射的视频进入 skipped（不参与统计）
// - 输出保持输入顺序（scan 已按 RelPath 排序）
func ResolveLabels(files []domain.VideoFile) (jobs []Job, skipped []domain.SkippedVideo, err error) {
	jobs = make([]Job, 0, len(files))
	skipped = make([]domain.SkippedVideo, 0)

	for i := range files {
		o, e := label.Extract(files[i])
		if e != nil {
			var ue *label.UnmatchedError
			if errors.As(e, &ue) {
				skipped = append(skipped, domain.SkippedVideo{
					Video:  filepath.ToSlash(files[i].RelPath),
					Reason: domain.ErrCodeUnmappedLabel,
				})
				continue
			}
			return nil, nil, e
		}
		jobs = append(jobs, Job{File: files[i], Expected: o})
	}
	return jobs, skipped, nil
}
