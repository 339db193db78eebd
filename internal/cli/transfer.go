package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/obay/internal/jsonl"
	"github.com/mesh-intelligence/obay/pkg/types"
)

const defaultTransferDir = "obay-export"

func newExportCmd(env *environment) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every table to a JSONL file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := env.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Detach()

			for _, kind := range types.StandardKinds {
				tbl, err := st.GetTable(kind.Table)
				if err != nil {
					return err
				}
				recs, err := tbl.Query(cmd.Context(), types.Query{})
				if err != nil {
					return fmt.Errorf("reading %s: %w", kind.Table, err)
				}
				path := jsonl.Path(dir, kind.Table)
				if err := jsonl.WriteFile(path, recs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d %s to %s\n", len(recs), kind.Table, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultTransferDir, "directory for the JSONL files")
	return cmd
}

func newImportCmd(env *environment) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load records from JSONL files written by export",
		Long: "Load each <table>.jsonl file found in --dir. Records are validated\n" +
			"against their kind's schema; a record whose id already exists replaces\n" +
			"the stored one.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := env.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Detach()

			gws, err := env.gateways(st)
			if err != nil {
				return err
			}
			for _, g := range gws {
				path := jsonl.Path(dir, g.Kind().Table)
				recs, err := jsonl.ReadFile(path)
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				if err != nil {
					return err
				}
				for _, rec := range recs {
					_, err := g.Create(cmd.Context(), rec)
					if errors.Is(err, types.ErrDuplicateID) {
						_, err = g.Update(cmd.Context(), rec)
					}
					if err != nil {
						return fmt.Errorf("importing %s %q: %w", g.Kind().Name, rec.ID(), err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s from %s\n", len(recs), g.Kind().Table, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultTransferDir, "directory holding the JSONL files")
	return cmd
}
