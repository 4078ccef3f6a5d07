package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/dicebench/internal/config"
	"github.com/John-Robertt/dicebench/internal/domain"
	"github.com/John-Robertt/dicebench/internal/infra/postgres"
)

func newShowCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "从 PostgreSQL 读取一次运行的逐视频结果",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("database-url") {
				cwd, _ := os.Getwd()
				env, err := config.LoadEnv(cwd)
				if err != nil {
					fmt.Fprintf(os.Stderr, "读取环境变量失败：%v\n", err)
					return exitWith(1)
				}
				dsn = env.DatabaseURL
			}
			return exitWith(showCmd(cmd.Context(), dsn, args[0]))
		},
	}
	cmd.Flags().StringVar(&dsn, "database-url", "", "PostgreSQL 连接串（默认读 DATABASE_URL）")
	return cmd
}

func showCmd(ctx context.Context, dsn, runID string) int {
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "需要 --database-url 或 DATABASE_URL")
		return 2
	}

	rr, err := loadRun(ctx, dsn, runID)
	if errors.Is(err, postgres.ErrRunNotFound) {
		fmt.Fprintf(os.Stderr, "没有该运行：%s\n", runID)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取数据库失败：%v\n", err)
		return 1
	}
	emitReport(rr)
	return 0
}

func loadRun(ctx context.Context, dsn, runID string) (domain.RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s, err := postgres.Open(ctx, dsn)
	if err != nil {
		return domain.RunReport{}, err
	}
	defer s.Close()
	return s.LoadRun(ctx, runID)
}
