package main

import (
	"github.com/spf13/cobra"

	"perio-go/internal/chart"
)

var (
	traversalScheme  string
	traversalMissing []int
	traversalWisdom  bool
)

// Visit is one cell of the traversal order.
type Visit struct {
	Step     int            `yaml:"step" json:"step"`
	Key      string         `yaml:"key" json:"key"`
	Position chart.Position `yaml:"position,flow" json:"position"`
}

// TraversalOrder lists the cells the cursor visits from the start, skipping missing teeth.
func TraversalOrder(s chart.Scheme, missing chart.ToothSet) []Visit {
	pos := chart.Start(s, missing, chart.DefaultRetryCeiling)
	if missing.Has(chart.ToothAt(s, pos)) {
		return nil
	}
	var out []Visit
	for {
		out = append(out, Visit{Step: len(out) + 1, Key: chart.KeyAt(s, pos).String(), Position: pos})
		next := chart.AdvanceSkippingMissing(s, pos, missing, chart.DefaultRetryCeiling)
		if next == pos || missing.Has(chart.ToothAt(s, next)) {
			return out
		}
		pos = next
	}
}

var traversalCmd = &cobra.Command{
	Use:   "traversal",
	Short: "Print the order in which the cursor visits measurement points",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := chart.ParseScheme(traversalScheme)
		if err != nil {
			return err
		}
		missing := chart.NewToothSet(traversalMissing)
		if traversalWisdom {
			missing = chart.NewToothSet(traversalMissing, chart.WisdomTeeth)
		}
		return writeOut(cmd.OutOrStdout(), format, TraversalOrder(s, missing))
	},
}

func init() {
	traversalCmd.Flags().StringVarP(&traversalScheme, "scheme", "s", string(chart.SchemeSix), "Measurement scheme (six, four or single)")
	traversalCmd.Flags().IntSliceVar(&traversalMissing, "missing", nil, "Missing teeth (FDI numbers)")
	traversalCmd.Flags().BoolVar(&traversalWisdom, "without-wisdom", false, "Treat 18, 28, 38 and 48 as missing")
	rootCmd.AddCommand(traversalCmd)
}
