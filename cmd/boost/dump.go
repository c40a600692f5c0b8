package main

import (
	"fmt"

	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/serialization"
	"github.com/born-ml/boost/internal/tree"
	"github.com/spf13/cobra"
)

func dumpCmd() *cobra.Command {
	flags := param.Default()
	var header bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the trees of a saved model",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadParam(cmd, &flags)
			if err != nil {
				return err
			}
			r, err := serialization.NewModelReader(p.InModelName)
			if err != nil {
				return err
			}
			defer r.Close()

			w := cmd.OutOrStdout()
			if header {
				h := r.Header()
				fmt.Fprintf(w, "run %s created %s: %d rounds, objective %s, depth %d\n",
					h.RunID, h.CreatedAt.Format("2006-01-02 15:04:05"), h.Rounds, h.Param.Objective, h.Param.Depth)
			}
			m, err := r.ReadModel()
			if err != nil {
				return err
			}
			return tree.DumpModel(w, m.Trees)
		},
	}
	addModelFlag(cmd.Flags(), &flags)
	cmd.Flags().BoolVar(&header, "header", false, "Print the model header first")
	return cmd
}
