package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/akcizas/internal/recalc"
)

type recalcInput struct {
	Products        []map[string]any `json:"products"`
	TransportTotal  any              `json:"transport_total"`
	InvoiceDiscount any              `json:"invoice_discount"`
}

func newRecalcCmd(g *globalFlags) *cobra.Command {
	var (
		transportFlag string
		discountFlag  string
		index         int
	)
	cmd := &cobra.Command{
		Use:   "recalc [FILE]",
		Short: "Recalculate an invoice table from a JSON file or stdin",
		Long: `recalc reads either a JSON array of rows or an object with "products",
"transport_total" and "invoice_discount", and prints the recalculated rows,
totals and issues. Use "-" or omit FILE to read stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			in, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				in.TransportTotal = transportFlag
			}
			if cmd.Flags().Changed("invoice-discount") {
				in.InvoiceDiscount = discountFlag
			}

			engine, _, err := g.engine(cmd)
			if err != nil {
				return err
			}
			total, issue, err := recalc.ParseTransportTotal(in.TransportTotal)
			if err != nil {
				return err
			}
			issues := make([]recalc.Issue, 0)
			if issue != nil {
				issues = append(issues, *issue)
			}
			discount, discountIssue := recalc.ParseInvoiceDiscount(in.InvoiceDiscount)
			if discountIssue != nil {
				issues = append(issues, *discountIssue)
			}
			tc := recalc.TransportContext{Total: total, InvoiceDiscount: discount}

			items := recalc.DecodeItems(in.Products)
			if cmd.Flags().Changed("index") {
				row, _, err := engine.RecalculateOne(cmd.Context(), index, items, tc)
				if err != nil {
					return err
				}
				return g.write(cmd.OutOrStdout(), map[string]any{"data": recalc.EncodeRow(row)})
			}
			res, err := engine.RecalculateAll(cmd.Context(), items, tc)
			if err != nil {
				return err
			}
			return g.write(cmd.OutOrStdout(), map[string]any{
				"data":   recalc.EncodeRows(res.Rows),
				"totals": recalc.EncodeTotals(res.Totals, engine.Table(), engine.VATRate()),
				"issues": append(issues, res.Issues...),
			})
		},
	}
	cmd.Flags().StringVar(&transportFlag, "transport", "", "invoice transport total, overrides the file")
	cmd.Flags().StringVar(&discountFlag, "invoice-discount", "", "invoice-level discount amount, overrides the file")
	cmd.Flags().IntVar(&index, "index", 0, "print only the row at this zero-based index")
	return cmd
}

func readInput(stdin io.Reader, path string) (recalcInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return recalcInput{}, fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return recalcInput{}, fmt.Errorf("input is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var in recalcInput
	if data[0] == '[' {
		err = dec.Decode(&in.Products)
	} else {
		err = dec.Decode(&in)
	}
	if err != nil {
		return recalcInput{}, fmt.Errorf("decode input: %w", err)
	}
	return in, nil
}
