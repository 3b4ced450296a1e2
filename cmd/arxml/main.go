package main

import (
	"fmt"
	"os"

	"github.com/agentflare-ai/go-arxml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	schemaFile string
	verbose    bool
	noColor    bool
	strict     bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "arxml",
	Short: "Inspect and check element models split over several XML files",
	Long: `arxml loads one or more XML files into a single element model using a
YAML schema and lets you print, query and validate the merged result.

Example:
  arxml --schema autosar.yaml check system.arxml ecu.arxml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&schemaFile, "schema", "s", "", "YAML schema file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("schema")

	checkCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	checkCmd.Flags().BoolVar(&strict, "strict", false, "report file membership problems as errors")
	treeCmd.Flags().StringVar(&treeFile, "file", "", "only print elements of this file")

	rootCmd.AddCommand(treeCmd, lookupCmd, checkCmd, filesCmd)
}

// loadModel builds a model from the schema flag and the given files
func loadModel(files []string) (*arxml.Model, error) {
	schema, err := arxml.GlobalCache.Get(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	model := arxml.NewModel(schema, arxml.WithLogger(logger))
	for _, name := range files {
		if _, err := model.LoadFile(name); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
