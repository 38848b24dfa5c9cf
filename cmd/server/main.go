package main

import (
	"fmt"
	"os"

	"github.com/rongwang/tally-server/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every command
type rootOptions struct {
	ConfigFile string
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.ConfigFile == "" {
		return config.LoadConfig(), nil
	}
	return config.LoadFile(o.ConfigFile)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tally-server",
		Short: "Shared activity ledger server",
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
