package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/dicebench/internal/label"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve NAME...",
		Short: "打印文件名对应的期望点数（无法映射时为 -）",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			writeResolved(cmd.OutOrStdout(), args)
			return nil
		},
	}
}

func writeResolved(w io.Writer, names []string) {
	for _, n := range names {
		o, ok := label.Resolve(n)
		if !ok {
			fmt.Fprintf(w, "%s\t-\n", n)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\n", n, int(o))
	}
}
