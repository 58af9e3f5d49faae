package cli

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// Set by the root command before any subcommand runs.
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "colloquy",
		Short: "Discussions with AI personalities, in your language",
		Long: `colloquy runs a WebSocket gateway where clients open discussions with
AI personalities. Each personality's conditioning and welcome message are
translated once per language and cached on disk.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $COLLOQUY_HOME/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error or silent")

	cmd.AddCommand(
		newServeCmd(),
		newDiscussCmd(),
		newDiscussionsCmd(),
		newPersonalitiesCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}

// setup resolves the home directory, loads .env files and creates the
// command-line logger. Paths are resolved twice since .env may set
// COLLOQUY_HOME.
func setup(*cobra.Command, []string) error {
	home, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if err := loadDotEnv(home.Base); err != nil {
		return err
	}
	if paths, err = config.ResolvePaths(); err != nil {
		return err
	}
	paths.Config = cmp.Or(cfgFile, paths.Config)

	log = logging.New(nil, cmp.Or(logLevel, os.Getenv("COLLOQUY_LOG_LEVEL"), "info"))
	return nil
}

// loadDotEnv reads .env from the working directory, then from base. Values
// already in the environment are kept.
func loadDotEnv(base string) error {
	for _, p := range []string{".env", filepath.Join(base, ".env")} {
		err := godotenv.Load(p)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Execute runs the colloquy command line.
func Execute() error {
	return newRootCmd().Execute()
}
