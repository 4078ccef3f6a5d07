package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const DefaultQuality = 80

// EncodeOptions 控制帧的重新编码。
type EncodeOptions struct {
	// Quality 是 JPEG 质量（1..100）；0 表示 DefaultQuality。
	Quality int
	// MaxDim 限制输出的最长边（像素）；0 表示保持原尺寸。
	MaxDim int
}

// EncodeJPEG 把任意 image.Image 编码为 JPEG，必要时等比缩小。
//
// 约束：
// - 只缩小不放大
// - 缩放后宽高至少为 1
func EncodeJPEG(img image.Image, opts EncodeOptions) ([]byte, error) {
	if img == nil {
		return nil, errors.New("图片为空")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	q := opts.Quality
	if q <= 0 {
		q = DefaultQuality
	}
	if q > 100 {
		q = 100
	}

	src := img
	if w, h, ok := fitWithin(b.Dx(), b.Dy(), opts.MaxDim); ok {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		// CatmullRom 在缩小时比 ApproxBiLinear 清晰，帧数不多，耗时可接受。
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, src, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// fitWithin 计算等比缩放到最长边 <= maxDim 的尺寸；不需要缩放时 ok=false。
func fitWithin(w, h, maxDim int) (int, int, bool) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h, false
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh, true
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim, true
}
