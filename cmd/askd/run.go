package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/askbuild/ask/internal/builtin"
	"github.com/askbuild/ask/internal/config"
	"github.com/askbuild/ask/internal/db"
	"github.com/askbuild/ask/internal/engine"
	"github.com/askbuild/ask/internal/lockfile"
	"github.com/askbuild/ask/internal/logging"
	"github.com/askbuild/ask/internal/process"
	"github.com/askbuild/ask/internal/qa"
	"github.com/askbuild/ask/internal/queue"
	"github.com/askbuild/ask/internal/statusd"
	"github.com/askbuild/ask/internal/watch"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Ask a root ExecQuestion built from argv and dispatch until it settles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, args)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func runRoot(cmd *cobra.Command, argv []string) error {
	projectDir, _ := cmd.Flags().GetString("project-dir")
	cfg, err := config.Load(cmd.Flags(), projectDir)
	if err != nil {
		return err
	}

	log := logging.SetupStderr(cfg.LogJSON, logging.ParseLevel(cfg.LogLevel))
	if cfg.LogPath != "" {
		lj, fileLog := logging.SetupFile(cfg.LogPath, cfg.LogJSON, logging.ParseLevel(cfg.LogLevel))
		defer lj.Close()
		log = fileLog
	}

	lock, err := lockfile.Acquire(projectDir, cfg.DatabasePath, Version)
	if err != nil {
		return fmt.Errorf("askd: another instance owns %s: %w", projectDir, err)
	}
	defer lock.Close()

	database, err := db.Open(cfg.DatabasePath, db.OpenFlags{Create: true})
	if err != nil {
		return err
	}
	defer database.Close()

	reg := qa.NewRegistry()
	builtin.RegisterAll(reg)

	proc := process.Allocate(cfg.ProcessLimit, process.Config{})
	ctx := cmd.Context()
	proc.RunAsync(ctx)
	defer proc.Deallocate(5 * time.Second)

	q := queue.New(nil)
	defer q.Deallocate()

	eng := engine.New(database, reg, q, proc, engine.DispatcherFunc(func(actx *engine.AnswerContext) {
		if builtin.Dispatch(actx) {
			return
		}
		actx.Fail(fmt.Errorf("askd: no dispatcher registered for %T", actx.Question()))
	}))

	var statusSrv *statusd.Server
	if cfg.StatusAddr != "" {
		statusSrv = statusd.New(eng, log.Slog())
		go func() {
			if err := statusSrv.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				log.Error("statusd exited", "err", err)
			}
		}()
	}

	go func() { _ = eng.Run() }()

	root := builtin.ExecQuestion{Argv: argv}
	runOnce := func() error {
		start := time.Now()
		f := eng.Ask(root, builtin.ExecVTable{})

		done := make(chan struct{})
		var answer any
		var runErr error
		f.AddCallback(func(a any, err error) {
			answer, runErr = a, err
			close(done)
		})
		<-done

		took := time.Since(start)
		if statusSrv != nil {
			statusSrv.RecordBuildDuration(took)
		}
		if runErr != nil {
			log.Error("run failed", "err", runErr, "took", took)
			return runErr
		}
		result := answer.(builtin.ExecAnswer)
		fmt.Fprint(cmd.OutOrStdout(), result.Output)
		log.Info("run complete", "exit_code", result.ExitCode, "took", took)
		return nil
	}

	if !cfg.Watch {
		return runOnce()
	}

	// A bare ExecQuestion root declares no file dependencies of its
	// own, and nothing here calls Watcher.Track or TrackDependency:
	// the Database offers no hook on RecordDependency. The watcher
	// therefore tracks no path, and only the initial build runs.
	w, err := watch.New(50*time.Millisecond, func() {
		if err := runOnce(); err != nil {
			log.Error("rebuild failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := runOnce(); err != nil {
		log.Error("initial build failed", "err", err)
	}

	<-ctx.Done()
	return nil
}
