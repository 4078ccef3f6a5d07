package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/dicebench/internal/app/run"
	"github.com/John-Robertt/dicebench/internal/config"
	"github.com/John-Robertt/dicebench/internal/domain"
	"github.com/John-Robertt/dicebench/internal/infra/cache"
	"github.com/John-Robertt/dicebench/internal/infra/fsx"
	"github.com/John-Robertt/dicebench/internal/infra/postgres"
	"github.com/John-Robertt/dicebench/internal/logging"
)

const reportFileName = "report.json"

func newRunCmd() *cobra.Command {
	var cli config.CLIArgs

	cmd := &cobra.Command{
		Use:   "run [dataset-dir]",
		Short: "对数据集运行一次评测",
		Long: `对数据集目录中的视频逐个调用模型，并与文件名推导出的点数比对。

stdout 是终端时输出摘要与逐视频表格；否则 stdout 只输出一个 RunReport JSON。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cli.Path = args[0]
			}
			f := cmd.Flags()
			cli.BackendSet = f.Changed("backend")
			cli.ModelSet = f.Changed("model")
			cli.ModeSet = f.Changed("mode")
			cli.FPSSet = f.Changed("fps")
			cli.ConcurrencySet = f.Changed("concurrency")
			cli.OutSet = f.Changed("out")
			cli.DatabaseURLSet = f.Changed("database-url")
			cli.PromptSet = f.Changed("prompt")
			cli.ReplayFromSet = f.Changed("replay-from")
			return exitWith(runCmd(cmd.Context(), cli))
		},
	}

	f := cmd.Flags()
	f.StringVar(&cli.Backend, "backend", config.DefaultBackend, "模型后端：openai|ollama|bedrock|replay")
	f.StringVar(&cli.Model, "model", "", "模型名（replay 时为 <backend>/<model>）")
	f.StringVar(&cli.Mode, "mode", "", "输入方式：frames|video（bedrock 默认 video，其余 frames）")
	f.Float64Var(&cli.FPS, "fps", config.DefaultTargetFPS, "抽帧目标帧率")
	f.IntVar(&cli.Concurrency, "concurrency", config.DefaultConcurrency, "并行评测的视频数")
	f.StringVar(&cli.Out, "out", "", "输出目录：写入 report.json 与 replies/")
	f.StringVar(&cli.DatabaseURL, "database-url", "", "PostgreSQL 连接串（默认读 DATABASE_URL；传空串关闭）")
	f.StringVar(&cli.Prompt, "prompt", "", "覆盖默认提示词")
	f.StringVar(&cli.ReplayFrom, "replay-from", "", "replay 读取的记录目录（默认同 --out）")
	return cmd
}

func runCmd(ctx context.Context, cli config.CLIArgs) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	env, err := config.LoadEnv(cwdAbs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取环境变量失败：%v\n", err)
		return 1
	}

	log, err := logging.New(env.LogLevel, os.Stderr, isTTY(os.Stderr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	eff, err := config.LoadEffective(cwdAbs, cli, env)
	if err != nil {
		emitReport(reportForError(cwdAbs, cli, err.Error()))
		return 1
	}

	m, err := buildModel(ctx, eff)
	if err != nil {
		log.Error("init backend failed", zap.String("backend", eff.Backend), zap.Error(err))
		rr := reportForError(eff.Path, cli, err.Error())
		rr.Backend = eff.Backend
		rr.Model = eff.Model
		emitReport(rr)
		return 1
	}

	deps := run.Deps{Model: m, Logger: log}
	if eff.OutDir != "" && eff.Backend != "replay" {
		store := cache.New(eff.OutDir, false)
		deps.Replies = &store
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, deps, obs)

	code := runExitCode(rr)

	if eff.OutDir != "" {
		if err := writeReportFile(eff.OutDir, rr); err != nil {
			log.Error("write report failed", zap.String("dir", eff.OutDir), zap.Error(err))
			code = 1
		}
	}

	// 只保存完整的运行；fatal（包括中断）的报告不进数据库。
	if eff.DatabaseURL != "" && rr.Fatal == "" {
		if err := saveRun(ctx, eff.DatabaseURL, rr); err != nil {
			log.Error("save run to postgres failed", zap.String("run_id", rr.RunID), zap.Error(err))
			code = 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	return code
}

// runExitCode: 遍历完数据集 => 0；fatal => 1；被中断 => 130（与 shell 对 SIGINT 的约定一致）。
func runExitCode(rr domain.RunReport) int {
	switch rr.Fatal {
	case "":
		return 0
	case domain.FatalInterrupted:
		return 130
	default:
		return 1
	}
}

func saveRun(ctx context.Context, dsn string, rr domain.RunReport) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s, err := postgres.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveRun(ctx, rr)
}

func writeReportFile(dir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(dir, reportFileName, b)
}

// reportForError 构造配置/初始化阶段失败时的报告（仍然保持 stdout 的 JSON 契约）。
func reportForError(path string, cli config.CLIArgs, msg string) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Backend:    cli.Backend,
		Model:      cli.Model,
		Mode:       cli.Mode,
		Path:       path,
		StartedAt:  now,
		FinishedAt: now,
		Fatal:      msg,
	}
	rr.Finalize()
	return rr
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		if rr.Fatal != "" {
			fmt.Fprintf(os.Stderr, "运行失败：%s\n", rr.Fatal)
			return
		}
		writeResultTable(os.Stdout, rr)
		fmt.Fprintln(os.Stdout)
		writeSummary(os.Stdout, rr)
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	if rr.Fatal != "" {
		fmt.Fprintf(os.Stderr, "运行失败：%s\n", rr.Fatal)
		return
	}
	writeSummary(os.Stderr, rr)
}

func writeSummary(w io.Writer, rr domain.RunReport) {
	s := rr.Summary
	fmt.Fprintf(w, "Total videos processed: %d\n", s.Total)
	fmt.Fprintf(w, "Correct predictions: %d\n", s.Correct)
	fmt.Fprintf(w, "Accuracy: %.2f%%\n", s.Accuracy)
	if s.Failed > 0 || s.Skipped > 0 {
		fmt.Fprintf(w, "failed=%d skipped=%d\n", s.Failed, s.Skipped)
	}
}

func writeResultTable(w io.Writer, rr domain.RunReport) {
	if len(rr.Results) == 0 && len(rr.Skipped) == 0 {
		return
	}
	data := make([][]string, 0, len(rr.Results)+len(rr.Skipped))
	for _, r := range rr.Results {
		data = append(data, []string{r.Video, strconv.Itoa(r.Expected), formatPredicted(r.Predicted), resultStatus(r), truncate(r.Error, 60)})
	}
	for _, s := range rr.Skipped {
		data = append(data, []string{s.Video, "-", "-", "SKIP", s.Reason})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"VIDEO", "EXPECTED", "PREDICTED", "RESULT", "NOTE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil || eff.OutDir == "" {
		return
	}
	fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.OutDir, reportFileName))
	if eff.Backend != "replay" {
		fmt.Fprintf(w, "replies: %s\n", filepath.Join(eff.OutDir, "replies"))
	}
}
