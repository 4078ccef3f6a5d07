// Package frames 从视频流中按近似固定帧率抽取静帧，并重新编码为 JPEG。
package frames

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"io"
	"math"

	"github.com/John-Robertt/dicebench/internal/infra/imgx"
)

const (
	DefaultTargetFPS = 30.0
	DefaultMaxDim    = 768
)

// Source 是逐帧解码的视频流。
//
// Next 在流结束时返回 io.EOF；其它错误视为解码失败。
type Source interface {
	FPS() float64
	Next() (image.Image, error)
	Close() error
}

// Frame 是一张被保留的静帧。
type Frame struct {
	// Seq 是输出序号（从 0 开始）。
	Seq int
	// SourceIndex 是该帧在原视频中的帧序号。
	SourceIndex int
	JPEG        []byte
}

// Base64 返回 JPEG 字节的标准 base64 文本。
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.JPEG)
}

// DataURL 返回可直接放进多模态请求的 data URL。
func (f Frame) DataURL() string {
	return "data:image/jpeg;base64," + f.Base64()
}

// Stats 记录一次抽帧的统计信息。
type Stats struct {
	NativeFPS float64
	Interval  int
	// Read 是已解码的源帧数（含被跳过的帧）。
	Read int
	Kept int
	// DecodeErr 非空表示流在中途解码失败，已保留的帧仍然有效。
	DecodeErr error
}

// Sampler 描述抽帧参数；零值可用（30fps、质量 80、最长边 768）。
type Sampler struct {
	TargetFPS float64
	Quality   int
	// MaxDim 为负数时不缩放。
	MaxDim int
}

func (s Sampler) targetFPS() float64 {
	if s.TargetFPS == 0 {
		return DefaultTargetFPS
	}
	return s.TargetFPS
}

func (s Sampler) encodeOptions() imgx.EncodeOptions {
	maxDim := s.MaxDim
	switch {
	case maxDim == 0:
		maxDim = DefaultMaxDim
	case maxDim < 0:
		maxDim = 0
	}
	return imgx.EncodeOptions{Quality: s.Quality, MaxDim: maxDim}
}

// Interval 计算保留间隔：max(1, round(native/target))。
// native 非有限或 <= 0、target <= 0 时返回 1（保留每一帧）。
func Interval(native, target float64) int {
	if math.IsNaN(native) || math.IsInf(native, 0) || native <= 0 {
		return 1
	}
	if math.IsNaN(target) || math.IsInf(target, 0) || target <= 0 {
		return 1
	}
	n := math.Round(native / target)
	if n < 1 || math.IsInf(n, 0) {
		return 1
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// Each 按顺序遍历 src，对每一张保留的帧调用 fn。
//
// 约束：
// - 流结束或解码失败都只会终止遍历，解码失败记录在 Stats.DecodeErr
// - 只有 ctx 取消、JPEG 编码失败或 fn 返回的错误会作为 error 返回
// - 不关闭 src，由调用方负责
func (s Sampler) Each(ctx context.Context, src Source, fn func(Frame) error) (Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st := Stats{NativeFPS: src.FPS()}
	st.Interval = Interval(st.NativeFPS, s.targetFPS())
	opts := s.encodeOptions()

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		img, err := src.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				st.DecodeErr = err
			}
			return st, nil
		}
		st.Read++
		if i%st.Interval != 0 {
			continue
		}

		b, err := imgx.EncodeJPEG(img, opts)
		if err != nil {
			return st, err
		}
		f := Frame{Seq: st.Kept, SourceIndex: i, JPEG: b}
		st.Kept++
		if err := fn(f); err != nil {
			return st, err
		}
	}
}

// Sample 是 Each 的收集形式。
func (s Sampler) Sample(ctx context.Context, src Source) ([]Frame, Stats, error) {
	out := make([]Frame, 0)
	st, err := s.Each(ctx, src, func(f Frame) error {
		out = append(out, f)
		return nil
	})
	return out, st, err
}
