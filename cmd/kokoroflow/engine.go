package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/internal/ai"
	"github.com/keshon/kokoroflow/internal/config"
	"github.com/keshon/kokoroflow/internal/logging"
	"github.com/keshon/kokoroflow/internal/mind"
	"github.com/keshon/kokoroflow/internal/storage"
)

// engine is everything a running conversation needs except the transport.
type engine struct {
	cfg     *config.Config
	log     zerolog.Logger
	backend storage.Backend
	store   *mind.Store
	closers []io.Closer
}

func openEngine(ctx context.Context, configPath string) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	e := &engine{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	backend, err := storage.Open(cfg.Storage, log)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.backend = backend
	e.closers = append(e.closers, backend)

	e.store = mind.NewStore(backend, cfg.Prompt.MaxLogEntries, log)
	if err := e.store.Preload(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *engine) loop(exec mind.Executor) (*mind.Loop, error) {
	return mind.NewLoop(mind.Deps{
		Config:   e.cfg,
		Store:    e.store,
		Provider: ai.NewChatClient(e.cfg.Model, e.log),
		Executor: exec,
		Logger:   e.log,
	})
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	return errors.Join(errs...)
}

// serve runs the loop and a transport until a signal arrives or either of
// them returns.
func serve(ctx context.Context, log zerolog.Logger, loop *mind.Loop, transport func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	errCh := make(chan error, 1)
	go func() {
		errCh <- transport(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var err error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case err = <-errCh:
		if err != nil {
			err = fmt.Errorf("transport: %w", err)
		}
	case err = <-loopDone:
		return err
	}
	cancel()
	if lerr := <-loopDone; lerr != nil && err == nil {
		err = lerr
	}
	log.Info().Msg("exited cleanly")
	return err
}
