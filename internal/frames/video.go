package frames

import (
	"errors"
	"fmt"
	"image"
	"io"

	vidio "github.com/AlexEidt/Vidio"
)

// ErrShortStream 表示解码器提前结束，实际帧数少于容器声明的帧数。
var ErrShortStream = errors.New("视频流提前结束")

// VideoSource 基于 ffmpeg（Vidio）逐帧解码视频文件。
type VideoSource struct {
	v    *vidio.Video
	read int
	done bool
}

// OpenVideo 打开视频文件；调用方必须 Close。
func OpenVideo(path string) (*VideoSource, error) {
	v, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("打开视频失败：%w", err)
	}
	return &VideoSource{v: v}, nil
}

func (s *VideoSource) FPS() float64 { return s.v.FPS() }

// Next 返回下一帧的独立副本（Vidio 会复用内部帧缓冲）。
func (s *VideoSource) Next() (image.Image, error) {
	if s.done {
		return nil, io.EOF
	}
	if !s.v.Read() {
		s.done = true
		// webm 等容器常常不声明帧数（Frames() 为 0），此时无法区分结束与失败。
		if want := s.v.Frames(); want > 0 && s.read < want {
			return nil, fmt.Errorf("%w：已读 %d 帧，声明 %d 帧", ErrShortStream, s.read, want)
		}
		return nil, io.EOF
	}
	s.read++

	w, h := s.v.Width(), s.v.Height()
	buf := s.v.FrameBuffer()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, buf)
	return img, nil
}

func (s *VideoSource) Close() error {
	if s.v != nil {
		s.v.Close()
		s.v = nil
	}
	return nil
}
