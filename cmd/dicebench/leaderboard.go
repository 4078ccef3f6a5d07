package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/dicebench/internal/config"
	"github.com/John-Robertt/dicebench/internal/domain"
	"github.com/John-Robertt/dicebench/internal/infra/fsx"
	"github.com/John-Robertt/dicebench/internal/infra/postgres"
	"github.com/John-Robertt/dicebench/internal/leaderboard"
)

type leaderboardArgs struct {
	Reports        []string
	DatabaseURL    string
	DatabaseURLSet bool
	HTML           string
	Title          string
}

func newLeaderboardCmd() *cobra.Command {
	var la leaderboardArgs

	cmd := &cobra.Command{
		Use:   "leaderboard [report.json ...]",
		Short: "汇总多次运行，按准确率生成排行榜",
		RunE: func(cmd *cobra.Command, args []string) error {
			la.Reports = args
			la.DatabaseURLSet = cmd.Flags().Changed("database-url")
			return exitWith(leaderboardCmd(cmd.Context(), la))
		},
	}

	f := cmd.Flags()
	f.StringVar(&la.DatabaseURL, "database-url", "", "从 PostgreSQL 读取运行记录（默认读 DATABASE_URL）")
	f.StringVar(&la.HTML, "html", "", "把排行榜写成 HTML 文件")
	f.StringVar(&la.Title, "title", "", "HTML 页面标题")
	return cmd
}

func leaderboardCmd(ctx context.Context, la leaderboardArgs) int {
	dsn := la.DatabaseURL
	if !la.DatabaseURLSet && len(la.Reports) == 0 {
		cwd, _ := os.Getwd()
		env, err := config.LoadEnv(cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取环境变量失败：%v\n", err)
			return 1
		}
		dsn = env.DatabaseURL
	}
	if len(la.Reports) == 0 && dsn == "" {
		fmt.Fprintln(os.Stderr, "需要 report.json 文件或 --database-url")
		return 2
	}

	runs, err := leaderboard.LoadReports(la.Reports)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取报告失败：%v\n", err)
		return 1
	}
	if dsn != "" {
		stored, err := listRuns(ctx, dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取数据库失败：%v\n", err)
			return 1
		}
		runs = append(runs, stored...)
	}

	entries := leaderboard.Build(runs)

	if la.HTML != "" {
		b, err := leaderboard.RenderHTML(la.Title, entries)
		if err != nil {
			fmt.Fprintf(os.Stderr, "渲染 HTML 失败：%v\n", err)
			return 1
		}
		abs, _ := filepath.Abs(la.HTML)
		if err := fsx.WriteFileAtomic(filepath.Dir(abs), filepath.Base(abs), b); err != nil {
			fmt.Fprintf(os.Stderr, "写入 HTML 失败：%v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "html: %s\n", abs)
	}

	if isTTY(os.Stdout) {
		leaderboard.RenderTable(os.Stdout, entries)
		return 0
	}
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(entries)
	return 0
}

func listRuns(ctx context.Context, dsn string) ([]domain.RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.ListRuns(ctx)
}
