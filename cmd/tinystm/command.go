package main

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pingcap-incubator/tinystm/config"
	"github.com/pingcap-incubator/tinystm/server"
	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap-incubator/tinystm/workload"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dining philosophers workload against a fresh region",
		Args:  cobra.NoArgs,
		RunE:  runWorkload,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func newConfigCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config-check",
		Short: "Check the configuration and print the effective one",
		Args:  cobra.NoArgs,
		RunE:  checkConfig,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Release Version:", ReleaseVersion)
			fmt.Fprintln(out, "Git Commit Hash:", GitHash)
			fmt.Fprintln(out, "UTC Build Time: ", BuildTS)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	conf := config.NewDefaultConfig()
	if err := conf.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	conf.Adjust()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func checkConfig(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, msg := range conf.WarningMsgs {
		fmt.Fprintln(out, msg)
	}
	if len(conf.WarningMsgs) == 0 {
		fmt.Fprintln(out, "config check successful")
	}
	return errors.Trace(toml.NewEncoder(out).Encode(conf))
}

func logInfo(conf *config.Config) {
	log.Info("Welcome to tinystm")
	log.Info("tinystm", zap.String("release-version", ReleaseVersion))
	log.Info("tinystm", zap.String("git-hash", GitHash))
	log.Info("tinystm", zap.String("utc-build-time", BuildTS))
	log.Info("tinystm", zap.Reflect("config", conf))
	for _, msg := range conf.WarningMsgs {
		log.Warn(msg)
	}
}

func runWorkload(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err = conf.SetupLogger(); err != nil {
		return errors.Annotate(err, "initialize logger")
	}
	// Flushing any buffered log entries
	defer log.Sync()
	logInfo(conf)

	s, err := stm.New(conf.STMOptions())
	if err != nil {
		return err
	}

	if conf.StatusAddr != "" {
		srv := server.NewServer(conf.StatusAddr, s)
		if err = srv.Start(); err != nil {
			return err
		}
		defer srv.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := handleSignal(cancel)
	defer stop()

	report, err := workload.Run(ctx, s, &conf.Workload)
	if report != nil {
		if rerr := report.Render(cmd.OutOrStdout(), conf.Output); rerr != nil && err == nil {
			err = rerr
		}
	}
	if errors.Cause(err) == workload.ErrInconsistent {
		log.Error("the region was seen in an inconsistent state", zap.Error(err))
	}
	return err
}
