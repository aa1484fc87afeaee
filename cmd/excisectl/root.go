package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/akcizas/internal/app"
	"github.com/noah-isme/akcizas/internal/config"
	"github.com/noah-isme/akcizas/internal/excise"
	"github.com/noah-isme/akcizas/internal/obs"
	"github.com/noah-isme/akcizas/internal/recalc"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type globalFlags struct {
	year      int
	vat       string
	ratesFile string
	format    string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "excisectl",
		Short: "Excise duty and landed cost calculator for alcohol invoices",
		Long: `excisectl recalculates invoice tables offline with the same engine the
HTTP API uses: excise category classification, excise duty, transport
allocation and cost with and without VAT.

Defaults come from the same environment variables as the server
(EXCISE_TAX_YEAR, VAT_RATE, EXCISE_RATES_FILE, GLASSWARE_TRANSPORT_VOLUME).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&g.year, "year", 0, "tax year of the rate table (default from EXCISE_TAX_YEAR)")
	root.PersistentFlags().StringVar(&g.vat, "vat", "", "VAT rate as a fraction, e.g. 0.21 (default from VAT_RATE)")
	root.PersistentFlags().StringVar(&g.ratesFile, "rates-file", "", "YAML rate table to add to the built-in ones")
	root.PersistentFlags().StringVarP(&g.format, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log row-level warnings to stderr")

	root.AddCommand(newRecalcCmd(g), newClassifyCmd(g), newRatesCmd(g), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "excisectl %s (%s)\n", Version, runtime.Version())
		},
	}
}

// loadConfig applies flag overrides on top of the environment configuration.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.year != 0 {
		cfg.TaxYear = g.year
	}
	if g.vat != "" {
		vat, err := decimal.NewFromString(strings.TrimSpace(g.vat))
		if err != nil {
			return nil, fmt.Errorf("--vat: %w", err)
		}
		if vat.IsNegative() || vat.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("--vat must be in [0, 1), got %s", vat)
		}
		cfg.VATRate = vat
	}
	if g.ratesFile != "" {
		cfg.RatesFile = g.ratesFile
	}
	return cfg, nil
}

func (g *globalFlags) logger(cmd *cobra.Command) zerolog.Logger {
	level := "error"
	if g.verbose {
		level = "debug"
	}
	return obs.NewLoggerTo(cmd.ErrOrStderr(), "console", level)
}

func (g *globalFlags) engine(cmd *cobra.Command) (*recalc.Engine, *excise.Registry, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	registry, table, err := app.LoadRates(cfg)
	if err != nil {
		return nil, nil, err
	}
	return recalc.NewEngine(table, recalc.Options{
		VATRate:         cfg.VATRate,
		GlasswareVolume: cfg.GlasswareVolume,
		Logger:          g.logger(cmd),
	}), registry, nil
}

func (g *globalFlags) write(w io.Writer, v any) error {
	switch strings.ToLower(g.format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		// round-trip through JSON so yaml sees the json field names
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", g.format)
}
