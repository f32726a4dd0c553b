package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lost-woods/nistcheck/src/api"
	"github.com/lost-woods/nistcheck/src/config"
	"github.com/lost-woods/nistcheck/src/history"
	"github.com/lost-woods/nistcheck/src/nist"
	"github.com/lost-woods/nistcheck/src/runner"
	"github.com/lost-woods/nistcheck/src/server"
	"github.com/lost-woods/nistcheck/src/suite"
)

var errStopped = errors.New("run stopped before completion")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, err := config.NewCommand(run)
	if err == nil {
		err = rootCmd.ExecuteContext(ctx)
	}
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errStopped):
		return 130
	case errors.Is(err, config.ErrUsage):
		fmt.Fprintln(os.Stderr, err)
		return 2
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	zapLogger, err := newLogger(cfg.LogDev)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	reg := nist.Registry()
	if cfg.TestsFile != "" {
		settings, err := suite.LoadSettings(cfg.TestsFile)
		if err == nil {
			err = reg.Apply(settings)
		}
		if err != nil {
			return fmt.Errorf("%w: test settings %s: %w", config.ErrUsage, cfg.TestsFile, err)
		}
	}
	if reg.Enabled() == 0 {
		log.Warn("No tests enabled")
	}

	var (
		recorder runner.Recorder
		hist     api.History
	)
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder, hist = store, store
	}

	ctrl := runner.New(reg, recorder, log)
	req := runner.Request{
		Path:         cfg.Input,
		Serial:       cfg.Serial,
		BitsPerBlock: cfg.BitsPerBlock,
		Blocks:       cfg.Blocks,
		ReportPath:   cfg.ReportPath,
	}

	if cfg.ListenAddr != "" {
		return serve(cmd.Context(), cfg, ctrl, hist, req, log)
	}
	return runCLI(cmd.Context(), cfg, ctrl, req, log)
}

func serve(ctx context.Context, cfg *config.Config, ctrl *runner.Controller, hist api.History, req runner.Request, log *zap.SugaredLogger) error {
	if cfg.HasSource() {
		if _, err := ctrl.Start(req); err != nil {
			log.Errorw("Can't start run", "error", err)
		}
	}

	handlers := api.NewHandlers(ctrl, hist, cfg.BitsPerBlock, log)
	srv := server.New(cfg.ListenAddr, handlers, cfg.APIKey, ctrl, cfg.PollInterval, log)
	err := srv.Run(ctx)

	if ctrl.Stop() == nil {
		log.Info("Waiting for the current block")
		ctrl.Wait()
	}
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

func runCLI(ctx context.Context, cfg *config.Config, ctrl *runner.Controller, req runner.Request, log *zap.SugaredLogger) error {
	if _, err := ctrl.Start(req); err != nil {
		return fmt.Errorf("can't open source: %w", err)
	}

	stopping := false
	lastProgress := time.Now()
	for {
		out, ok := ctrl.Poll(cfg.PollInterval)
		if ok {
			if out.Report == nil {
				if out.Err != nil {
					return out.Err
				}
				return errStopped
			}
			fmt.Println(out.Report.Text)
			return out.Err
		}

		if !stopping && ctx.Err() != nil {
			stopping = true
			log.Info("Stop requested, finishing the current block")
			_ = ctrl.Stop()
		}

		if time.Since(lastProgress) >= cfg.ProgressInterval {
			lastProgress = time.Now()
			p := ctrl.State().Snapshot()
			log.Infow("Progress",
				"blocks", fmt.Sprintf("%d/%d", p.CompletedBlocks, p.TotalBlocks),
				"avg_block", time.Duration(p.AvgBlockMillis)*time.Millisecond,
				"time_left", p.TimeLeft(),
				"elapsed", p.Elapsed,
			)
		}
	}
}
