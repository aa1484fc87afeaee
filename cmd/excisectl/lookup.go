package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/akcizas/internal/common"
	"github.com/noah-isme/akcizas/internal/excise"
	"github.com/noah-isme/akcizas/internal/recalc"
)

func newClassifyCmd(g *globalFlags) *cobra.Command {
	var (
		abv         string
		productType string
	)
	cmd := &cobra.Command{
		Use:   "classify NAME...",
		Short: "Show the excise category for a product name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := g.engine(cmd)
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")
			hint := excise.DetectHint(name)
			if productType != "" {
				parsed, ok := excise.ParseHint(productType)
				if !ok {
					return fmt.Errorf("unknown product type %q", productType)
				}
				hint = parsed
			}
			var value decimal.NullDecimal
			if abv != "" {
				parsed, ok := common.ParseLocaleDecimal(abv)
				if !ok {
					return fmt.Errorf("--abv %q is not a number", abv)
				}
				value = decimal.NewNullDecimal(parsed)
			}
			cls := excise.NewClassifier(engine.Table()).Classify(hint, value)
			out := map[string]any{
				"name":          name,
				"category":      string(cls.Category),
				"label":         cls.Category.Label(),
				"product_type":  string(hint),
				"indeterminate": cls.Indeterminate,
				"glassware":     excise.IsGlassware(name),
			}
			if cls.Reason != "" {
				out["reason"] = cls.Reason
			}
			return g.write(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&abv, "abv", "", "alcohol by volume, percent")
	cmd.Flags().StringVar(&productType, "product-type", "", "explicit product type: spirits, beer, wine, intermediate, non_alcoholic")
	return cmd
}

func newRatesCmd(g *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Print the excise rate table for the tax year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, registry, err := g.engine(cmd)
			if err != nil {
				return err
			}
			if !all {
				return g.write(cmd.OutOrStdout(), recalc.RateTableView(engine.Table()))
			}
			tables := make([]map[string]any, 0, len(registry.Years()))
			for _, year := range registry.Years() {
				table, err := registry.ForYear(year)
				if err != nil {
					return err
				}
				tables = append(tables, recalc.RateTableView(table))
			}
			return g.write(cmd.OutOrStdout(), tables)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print every known tax year")
	return cmd
}
