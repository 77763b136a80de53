package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gardend/gardend/internal/config"
	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/program"
)

const defaultConfigPath = "./gardend.toml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate and manage gardend configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate the daemon configuration file and the program document it points to.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log, err := logger.New(logger.Config{Level: "info", Format: "text", Output: "stdout"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}

		configPath := defaultConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		log.Info("Validating configuration", logger.Field{Key: "path", Value: configPath})

		cfg, err := config.Load(configPath)
		if err != nil {
			log.Error("Failed to load config", err)
			os.Exit(1)
		}

		if errors := cfg.Validate(); len(errors) > 0 {
			log.Error("Config validation failed", fmt.Errorf("%d errors", len(errors)))
			for _, e := range errors {
				log.Error("Validation error", e)
			}
			os.Exit(1)
		}

		// The program document is optional at this point; the daemon writes
		// a default at first start.
		if doc, err := program.LoadDocument(cfg.ProgramPath()); err == nil {
			if err := doc.Program.Validate(); err != nil {
				log.Error("Program document validation failed", err,
					logger.Field{Key: "path", Value: cfg.ProgramPath()})
				os.Exit(1)
			}
			log.Info("Program document is valid",
				logger.Field{Key: "path", Value: cfg.ProgramPath()},
				logger.Field{Key: "cycles", Value: len(doc.Program.Cycles)})
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Error("Failed to load program document", err)
			os.Exit(1)
		}

		log.Info("✅ Configuration is valid")
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
