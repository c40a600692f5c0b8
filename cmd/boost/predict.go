package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/serialization"
	"github.com/born-ml/boost/internal/trainer"
	"github.com/spf13/cobra"
)

func predictCmd() *cobra.Command {
	flags := param.Default()
	var out string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict a LibSVM file with a saved model",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadParam(cmd, &flags)
			if err != nil {
				return err
			}
			m, err := serialization.Load(p.InModelName)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			ds, err := trainer.LoadData(m, p.Path, p.IndexBase)
			if err != nil {
				return err
			}
			pred, err := trainer.Predict(m, ds)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				//nolint:gosec // G304: output path comes from the user
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writePredictions(w, pred, ds.NInstances())
		},
	}
	addDataFlag(cmd.Flags(), &flags)
	addModelFlag(cmd.Flags(), &flags)
	cmd.Flags().StringVar(&out, "out", "", "Write predictions to a file instead of stdout")
	return cmd
}

// writePredictions writes one line per instance. Class-major multi-output
// predictions are written space separated.
func writePredictions(w io.Writer, pred []float32, n int) error {
	bw := bufio.NewWriter(w)
	k := len(pred) / n
	for i := range n {
		for c := range k {
			if c > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatFloat(float64(pred[c*n+i]), 'g', -1, 32)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
