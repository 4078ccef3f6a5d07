package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newCLI().ExecuteContext(ctx)
	stop()
	os.Exit(exitCodeOf(err))
}

// exitError 携带进程退出码；消息已由命令自行输出。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

// exitCodeOf: nil => 0；命令返回的 exitError 按其退出码；其余（参数/用法错误）=> 2。
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "参数错误：%v\n", err)
	return 2
}

func newCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "dicebench",
		Short:         "评测多模态模型能否从视频预测骰子点数",
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 参数解析通过后再出错就不再打印用法。
			cmd.SilenceUsage = true
		},
	}

	root.AddCommand(
		newRunCmd(),
		newLeaderboardCmd(),
		newResolveCmd(),
		newShowCmd(),
	)
	return root
}
