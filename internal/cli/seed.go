package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/obay/internal/fixtures"
)

const defaultSeedCount = 50

func newSeedCmd(env *environment) *cobra.Command {
	var (
		count int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert generated sample records for every kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return usageError{fmt.Errorf("--count must not be negative")}
			}
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			st, err := env.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Detach()

			gws, err := env.gateways(st)
			if err != nil {
				return err
			}
			gen := fixtures.New(seed)
			for _, g := range gws {
				for range count {
					rec, err := gen.Valid(g.Kind())
					if err != nil {
						return err
					}
					if _, err := g.Create(cmd.Context(), rec); err != nil {
						return fmt.Errorf("seeding %s: %w", g.Kind().Table, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d %s\n", count, g.Kind().Table)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", defaultSeedCount, "records to insert per kind")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "generator seed (default: current time)")
	return cmd
}
