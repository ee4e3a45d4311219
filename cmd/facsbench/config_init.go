package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okulev/facs/pkg/config"
)

var configInitOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration file",
	RunE:  writeExampleConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVar(&configInitOutput, "output", "config.yaml",
		"Path of the configuration file to write")
}

func writeExampleConfig(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configInitOutput); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", configInitOutput)
	}

	example := exampleConfig()

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("encoding example config: %w", err)
	}

	if err := os.WriteFile(configInitOutput, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configInitOutput, err)
	}

	log.WithField("path", configInitOutput).Info("Wrote example config")

	return nil
}

// exampleConfig returns a config populated with defaults plus
// placeholder paths an operator has to fill in anyway.
func exampleConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		// Defaults alone cannot fail to load.
		panic(err)
	}

	cfg.Benchmark.FastqDir = "/data/facs/fastq"
	cfg.Benchmark.ReferenceDir = "/data/facs/references"
	cfg.Results.Database.Driver = "sqlite"

	return cfg
}
