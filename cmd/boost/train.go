package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/trainer"
	"github.com/spf13/cobra"
)

func trainCmd() *cobra.Command {
	flags := param.Default()
	var showStats bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a LibSVM file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadParam(cmd, &flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := trainer.TrainFile(ctx, p)
			if err != nil {
				return err
			}
			if err := printTrace(cmd.OutOrStdout(), res.Trace); err != nil {
				return err
			}
			if showStats {
				return printAllocStats(cmd.OutOrStdout(), res)
			}
			return nil
		},
	}
	addTrainFlags(cmd.Flags(), &flags)
	cmd.Flags().BoolVar(&showStats, "alloc-stats", false, "Print allocator statistics after training")
	return cmd
}
