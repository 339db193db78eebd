package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/obay/internal/paths"
)

// configFile is the layout of a config.yaml written by init.
type configFile struct {
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"data_dir,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	Listen      string `yaml:"listen,omitempty"`
}

func newInitCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize obay configuration and storage",
		Long: "Create the configuration directory and config.yaml if missing,\n" +
			"then attach the configured backend and create the record tables.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(env.configDir, 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			path := filepath.Join(env.configDir, paths.ConfigFileName)
			if err := writeConfigIfMissing(path, configFile{
				Backend:     env.settings.Backend,
				DataDir:     env.settings.DataDir,
				PostgresDSN: env.settings.PostgresDSN,
				Listen:      env.settings.Listen,
			}); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			st, err := env.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.Detach(); err != nil {
				return fmt.Errorf("finalize storage: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "obay initialized (%s)\n", path)
			return nil
		},
	}
}

// writeConfigIfMissing writes cfg to path unless a file already exists there.
func writeConfigIfMissing(path string, cfg configFile) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
