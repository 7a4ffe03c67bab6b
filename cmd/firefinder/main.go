// Command firefinder detects cooking fires in stove thermocouple logs and
// publishes them to MQTT and Kafka.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Geocene/firefinder/internal/config"
)

// app holds state shared by the subcommands once the root has loaded it.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "firefinder",
		Short:         "Detect cooking events in stove temperature logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file (default ./.env if present)")

	root.AddCommand(newDetectCmd(a))
	root.AddCommand(newServeCmd(a))
	return root
}

// load reads the env file, then the config file, then applies FIREFINDER_*
// overrides.
func (a *app) load() error {
	if err := config.LoadEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	a.cfg = cfg
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
