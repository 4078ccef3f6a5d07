package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/dicebench/internal/app"
	"github.com/John-Robertt/dicebench/internal/config"
	"github.com/John-Robertt/dicebench/internal/domain"
	"github.com/John-Robertt/dicebench/internal/frames"
	"github.com/John-Robertt/dicebench/internal/infra/cache"
	"github.com/John-Robertt/dicebench/internal/model"
	"github.com/John-Robertt/dicebench/internal/predict"
	"github.com/John-Robertt/dicebench/internal/scan"
)

// Deps 是一次运行需要的外部协作者；在 main 中构造一次并显式传入。
type Deps struct {
	Model model.Model

	// OpenVideo 打开逐帧解码的视频流；nil 时使用 frames.OpenVideo。
	OpenVideo func(path string) (frames.Source, error)
	// ReadFile 读取原始视频字节（video 模式）；nil 时使用 os.ReadFile。
	ReadFile func(path string) ([]byte, error)

	// Replies 非 nil 且可写时，每条原始回复都会被记录下来。
	Replies *cache.Store

	Logger *zap.Logger
	// NewRunID nil 时使用 uuid.NewString。
	NewRunID func() string
}

func (d Deps) withDefaults() Deps {
	if d.OpenVideo == nil {
		d.OpenVideo = func(path string) (frames.Source, error) { return frames.OpenVideo(path) }
	}
	if d.ReadFile == nil {
		d.ReadFile = os.ReadFile
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	return d
}

// Execute 执行一次评测，并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为视频级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	deps = deps.withDefaults()
	log := deps.Logger

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     deps.NewRunID(),
		Backend:   eff.Backend,
		Model:     eff.Model,
		Mode:      string(eff.Mode),
		Path:      eff.Path,
		TargetFPS: eff.TargetFPS,
		StartedAt: time.Now().UTC(),
		Results:   make([]domain.EvaluationResult, 0, 64),
	}
	fatal := func(msg string) domain.RunReport {
		rr.Fatal = msg
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		log.Error("run aborted", zap.String("reason", msg))
		return rr
	}

	if deps.Model == nil {
		return fatal("未配置模型后端")
	}
	rr.Backend = deps.Model.Name()
	rr.Model = deps.Model.Model()
	if !deps.Model.Supports(eff.Mode) {
		return fatal(fmt.Sprintf("后端 %s 不支持 mode=%s", deps.Model.Name(), eff.Mode))
	}

	scanStarted := time.Now()
	files, err := scan.ScanVideos(eff.Path, eff.Exts, eff.ExcludeDirs)
	if err != nil {
		return fatal(fmt.Sprintf("扫描失败：%v", err))
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	}

	resolveStarted := time.Now()
	jobs, skipped, err := app.ResolveLabels(files)
	if err != nil {
		return fatal(fmt.Sprintf("标签解析失败：%v", err))
	}
	rr.Skipped = skipped
	for _, s := range skipped {
		log.Warn("no label mapping for video, skipping", zap.String("video", s.Video))
	}
	if obs != nil {
		obs.OnPhaseDone("resolve", map[string]any{
			"mapped":  len(jobs),
			"skipped": len(skipped),
		}, time.Since(resolveStarted))
	}

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers": workers,
			"total":   len(jobs),
		}, 0)
	}

	// 每个视频独占 results 中的一个槽位；只有完成计数需要加锁。
	results := make([]domain.EvaluationResult, len(jobs))
	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range jobs {
		g.Go(func() error {
			started := time.Now()
			res := evalOne(ctx, eff, deps, jobs[i])
			res.DurationMs = time.Since(started).Milliseconds()
			results[i] = res

			logResult(log, res)

			mu.Lock()
			done++
			idx := done
			mu.Unlock()
			if obs != nil {
				obs.OnItemDone(idx, len(jobs), res, time.Since(started))
			}
			return nil
		})
	}
	_ = g.Wait()

	rr.Results = append(rr.Results, results...)
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()

	// 中断的运行不是一次完整评测：标记为 fatal，避免进入排行榜与数据库。
	if err := ctx.Err(); err != nil {
		rr.Fatal = domain.FatalInterrupted
		log.Warn("run interrupted",
			zap.String("run_id", rr.RunID),
			zap.Int("total", rr.Summary.Total),
			zap.Error(err),
		)
		return rr
	}

	log.Info("run finished",
		zap.String("run_id", rr.RunID),
		zap.Int("total", rr.Summary.Total),
		zap.Int("correct", rr.Summary.Correct),
		zap.Int("failed", rr.Summary.Failed),
		zap.Int("skipped", rr.Summary.Skipped),
		zap.Float64("accuracy", rr.Summary.Accuracy),
	)
	return rr
}

const canceledNote = "运行已取消"

// evalOne 评测单个视频：准备输入 -> 调用模型 -> 记录回复 -> 解析并打分。
func evalOne(ctx context.Context, eff config.EffectiveConfig, deps Deps, job app.Job) domain.EvaluationResult {
	key := job.Key()
	if err := ctx.Err(); err != nil {
		return domain.Failed(key, job.Expected, domain.ErrCodeModelFailed, canceledNote)
	}

	in := model.Input{Key: key, Prompt: eff.Prompt}
	if model.NeedsMedia(deps.Model) {
		var errRes *domain.EvaluationResult
		in, errRes = prepareInput(ctx, eff, deps, job, in)
		if errRes != nil {
			return *errRes
		}
	}

	callCtx := ctx
	if eff.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, eff.Timeout)
		defer cancel()
	}
	reply, err := deps.Model.Predict(callCtx, in)
	if err != nil {
		deps.Logger.Warn("model call failed", zap.String("video", key), zap.Error(err))
		res := domain.Failed(key, job.Expected, domain.ErrCodeModelFailed, model.Humanize(err))
		res.Frames = len(in.Frames)
		return res
	}

	if deps.Replies != nil && !deps.Replies.ReadOnly {
		if err := deps.Replies.WriteReply(deps.Model.Name(), deps.Model.Model(), key, reply); err != nil {
			deps.Logger.Warn("write reply transcript failed", zap.String("video", key), zap.Error(err))
		}
	}

	res := Score(key, job.Expected, reply)
	res.Frames = len(in.Frames)
	return res
}

func prepareInput(ctx context.Context, eff config.EffectiveConfig, deps Deps, job app.Job, in model.Input) (model.Input, *domain.EvaluationResult) {
	key := job.Key()
	fail := func(msg string) (model.Input, *domain.EvaluationResult) {
		r := domain.Failed(key, job.Expected, domain.ErrCodeIOFailed, msg)
		return in, &r
	}

	switch eff.Mode {
	case model.ModeVideo:
		b, err := deps.ReadFile(job.File.AbsPath)
		if err != nil {
			return fail(fmt.Sprintf("读取视频失败：%v", err))
		}
		in.Video = &model.Video{Data: b, Format: job.File.Format()}
		return in, nil

	default:
		src, err := deps.OpenVideo(job.File.AbsPath)
		if err != nil {
			return fail(fmt.Sprintf("打开视频失败：%v", err))
		}
		// 每个视频独占一个解码会话，抽帧结束立即释放。
		s := frames.Sampler{TargetFPS: eff.TargetFPS, Quality: eff.JPEGQuality, MaxDim: eff.MaxDim}
		fr, st, err := s.Sample(ctx, src)
		_ = src.Close()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fail("运行已取消")
			}
			return fail(fmt.Sprintf("抽帧失败：%v", err))
		}
		if st.DecodeErr != nil {
			deps.Logger.Warn("video decode stopped early",
				zap.String("video", key), zap.Int("frames_read", st.Read), zap.Error(st.DecodeErr))
		}
		if len(fr) == 0 {
			return fail("没有解码出任何帧")
		}
		deps.Logger.Debug("frames sampled",
			zap.String("video", key),
			zap.Float64("native_fps", st.NativeFPS),
			zap.Int("interval", st.Interval),
			zap.Int("kept", st.Kept),
		)
		in.Frames = fr
		return in, nil
	}
}

// Score 把原始回复解析为点数并与期望值比较。
func Score(video string, expected domain.Outcome, reply string) domain.EvaluationResult {
	p, _ := predict.Parse(reply)
	res := domain.Judge(video, expected, p)
	res.Reply = reply
	return res
}

func logResult(log *zap.Logger, res domain.EvaluationResult) {
	fields := []zap.Field{
		zap.String("video", res.Video),
		zap.Int("expected", res.Expected),
		zap.Bool("correct", res.Correct),
	}
	if res.Predicted != nil {
		fields = append(fields, zap.Int("predicted", *res.Predicted))
	} else {
		fields = append(fields, zap.String("error_code", res.ErrorCode))
	}
	log.Info("video evaluated", fields...)
}
