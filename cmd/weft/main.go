// Package main provides the weft CLI for inspecting and running
// compiled graph packages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weft-ml/weft/internal/config"
	"github.com/weft-ml/weft/internal/exec"
	"github.com/weft-ml/weft/internal/pack"
	"github.com/weft-ml/weft/internal/tensor"
)

const version = "v0.1.0-dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "weft",
		Short:         "Weft symbolic tensor graph engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(versionCmd())
	root.AddCommand(inspectCmd())
	root.AddCommand(runCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("weft %s\n", version)
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <package-dir>",
		Short: "Print the manifest of a compiled package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pack.Open(args[0])
			if err != nil {
				return err
			}
			m := p.Manifest()

			fmt.Printf("package:      %s\n", m.PackageID)
			fmt.Printf("created:      %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Printf("device:       %s\n", m.DeviceName)
			fmt.Printf("optimization: %d\n", m.OptimizationLevel)
			if m.DeploymentTarget != "" {
				fmt.Printf("target:       %s\n", m.DeploymentTarget)
			}

			fmt.Printf("\nfeeds (%d):\n", len(m.Feeds))
			for i, slot := range m.Feeds {
				s := m.Slots[slot]
				fmt.Printf("  %d: %s %s%v\n", i, s.Name, s.DType, s.Shape)
			}
			fmt.Printf("targets (%d):\n", len(m.Targets))
			for i, slot := range m.Targets {
				s := m.Slots[slot]
				fmt.Printf("  %d: %s %s%v\n", i, s.Name, s.DType, s.Shape)
			}
			fmt.Printf("instructions (%d):\n", len(m.Instructions))
			for i, in := range m.Instructions {
				fmt.Printf("  %d: %s %v -> %v\n", i, in.Kind, in.Inputs, in.Outputs)
			}
			return nil
		},
	}
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <package-dir>",
		Short: "Load a package and run it once with zero-valued feeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dev, err := cfg.OpenDevice()
			if err != nil {
				return err
			}
			logger.Info("loading package",
				zap.String("dir", args[0]),
				zap.String("device", dev.Name()))

			exe, err := exec.LoadPackage(dev, args[0], nil)
			if err != nil {
				return err
			}

			inputs := make([]*tensor.TensorData, 0, len(exe.FeedTensors()))
			for _, ft := range exe.FeedTensors() {
				td, err := tensor.NewTensorData(ft.Shape(), ft.DType())
				if err != nil {
					return fmt.Errorf("allocating feed %q: %w", ft.Name(), err)
				}
				inputs = append(inputs, td)
			}

			outs, err := exe.RunInputs(inputs)
			if err != nil {
				return err
			}
			for i, out := range outs {
				fmt.Printf("target %d: %s\n", i, out)
				out.Release()
			}
			return nil
		},
	}
}
