package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/report"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <domain-id>",
	Short: "Export a domain's latest snapshot and results to XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domainID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid domain id %q", args[0])
		}

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.LatestSnapshot(ctx, domainID)
		if err != nil {
			return err
		}
		if snap == nil {
			return eris.Errorf("no snapshot stored for domain %d, run an analysis first", domainID)
		}

		results, err := st.ListResultsForDomain(ctx, domainID)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("visibility-%d.xlsx", domainID)
		}
		if err := report.WriteXLSX(out, snap, results); err != nil {
			return err
		}

		zap.L().Info("export written",
			zap.String("path", out),
			zap.Int("results", len(results)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default visibility-<id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
