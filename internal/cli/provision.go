package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/obay/pkg/types"
)

func newProvisionCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the record tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := env.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Detach()
			for _, name := range types.StandardTableNames {
				fmt.Fprintf(cmd.OutOrStdout(), "table %s ready\n", name)
			}
			return nil
		},
	}
}
