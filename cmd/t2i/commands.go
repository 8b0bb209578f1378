package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
}

func buildRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "t2i",
		Short:         "Preview text-to-image models on the Hugging Face inference API",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("T2I_CONFIG"), "Path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (console, json)")
	cmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")

	cmd.AddCommand(
		buildLoginCmd(flags),
		buildModelsCmd(flags),
		buildSelectCmd(flags),
		buildProbeCmd(flags),
		buildFindModelsCmd(flags),
		buildGenerateCmd(flags),
		buildCORSCheckCmd(flags),
	)
	return cmd
}

func buildLoginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Save the API token and probe every model with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, flags, args[0])
		},
	}
}

func buildModelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog and the current selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, flags)
		},
	}
}

func buildSelectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select [index]",
		Short: "Select the model used by generate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, flags, args[0])
		},
	}
}

func buildProbeCmd(flags *rootFlags) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check which catalog models are available",
		Long: `Check which catalog models are available.

Every model is probed concurrently unless --index picks one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, flags, index)
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", -1, "Probe only the model at this index")
	return cmd
}

func buildFindModelsCmd(flags *rootFlags) *cobra.Command {
	var reliable bool
	cmd := &cobra.Command{
		Use:   "find-models",
		Short: "Replace the catalog with well-known models that answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFindModels(cmd, flags, reliable)
		},
	}
	cmd.Flags().BoolVar(&reliable, "reliable", false, "Only select the reliable fallback model instead of scanning")
	return cmd
}

func buildGenerateCmd(flags *rootFlags) *cobra.Command {
	var out string
	var index int
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate an image for the prompt with the selected model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, flags, args[0], out, index)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "image.png", "Where to write the image")
	cmd.Flags().IntVarP(&index, "model", "m", -1, "Select this model index first")
	return cmd
}

func buildCORSCheckCmd(flags *rootFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "cors-check",
		Short: "Check whether cross-origin requests get through",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCORSCheck(cmd, flags, watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep checking on the configured interval until interrupted")
	return cmd
}
