package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/lifecycle"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/profile"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/service"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/storage"
)

// Run executes the long-running monitoring loop until interrupted, the
// operator quits or the acquisition sources run dry. Tasks are joined before
// the final save.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	prof, err := a.loadProfile()
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var assessments storage.AssessmentStore
	var alerts storage.AlertStore
	if store != nil {
		defer store.Close()
		assessments = store
		alerts = store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; history disabled")
	}

	sources, err := a.newSources()
	if err != nil {
		return err
	}
	mon := monitor.New(a.Logger, sources...)

	svc := service.New(service.OptionsFromConfig(a.Config), profile.Static(prof), mon, a.newPredictor(),
		assessments, alerts, a.newNotifier(), a.Logger)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	coordOpts := lifecycle.OptionsFromConfig(a.Config)
	coordOpts.Interrupts = interrupts
	coord := lifecycle.New(coordOpts, mon, svc, a.Logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := coord.Start(runCtx); err != nil {
		return err
	}
	a.Logger.Info().Str("user", prof.Name).Str("source", a.Config.Acquisition.Source).Msg("monitoring started")

	quit := make(chan struct{})
	if opts.Interactive {
		input := opts.Input
		if input == nil {
			input = os.Stdin
		}
		go watchQuit(input, quit)
		a.Logger.Info().Msg("type q and press enter to stop")
	}

	select {
	case sig := <-interrupts:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case <-quit:
		a.Logger.Info().Msg("quit requested")
	case <-mon.Done():
		a.Logger.Info().Msg("acquisition finished")
	case <-ctx.Done():
		a.Logger.Info().Msg("context cancelled")
	}

	stopErr := coord.StopAll(context.Background(), true)
	if stopErr != nil {
		a.Logger.Error().Err(stopErr).Msg("tasks did not stop cleanly")
	}

	if err := coord.SaveAll(context.Background()); err != nil {
		return err
	}
	a.Logger.Info().Str("path", a.Config.Persistence.DataPath()).Int("assessments", svc.Risks().Risk.Len()).Msg("monitoring stopped")

	if errors.Is(stopErr, lifecycle.ErrShutdownTimeout) {
		return stopErr
	}
	return nil
}

// watchQuit closes quit when a line reading "q" arrives on r.
func watchQuit(r io.Reader, quit chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
			close(quit)
			return
		}
	}
}
