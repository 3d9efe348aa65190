package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags at build time.
var (
	ReleaseVersion = "None"
	GitHash        = "None"
	BuildTS        = "None"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tinystm",
		Short:         "Stress a TL2 software transactional memory with the dining philosophers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCommand(),
		newConfigCheckCommand(),
		newVersionCommand(),
	)

	cobra.EnablePrefixMatching = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
