package cli

import (
	"context"
	"fmt"

	"github.com/roach88/idxstore/internal/config"
	"github.com/roach88/idxstore/internal/encrypt"
	"github.com/roach88/idxstore/internal/engine"
	"github.com/roach88/idxstore/internal/ir"
	"github.com/roach88/idxstore/internal/memdb"
	"github.com/roach88/idxstore/internal/sqlitedb"
	"github.com/roach88/idxstore/internal/store"
)

// session is a running engine over the configured backend with one
// manager attached.
type session struct {
	manager *store.Manager
	close   func()
}

// openSession starts an engine over the configured backend. With encrypted
// set, the manager decrypts with the keyring secret.
func openSession(ctx context.Context, opts *RootOptions, spec ir.DatabaseSpec, encrypted bool) (*session, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	logger := opts.logger()

	mopts := []store.Option{store.WithTimeout(cfg.Timeout), store.WithLogger(logger)}
	if encrypted {
		secret, err := keyringSource(cfg).Secret()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "read encryption secret", err)
		}
		mopts = append(mopts, store.WithHook(encrypt.NewAESGCM(), secret))
	}

	var backend engine.Backend
	switch cfg.Backend {
	case config.BackendMemory:
		backend = memdb.New(memdb.WithLogger(logger))
	default:
		db, err := sqlitedb.Open(cfg.Path, sqlitedb.WithLogger(logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open %s", cfg.Path), err)
		}
		backend = db
	}

	eng := engine.New(backend, engine.WithQuota(cfg.Quota), engine.WithLogger(logger))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()

	m := store.New(eng, spec, mopts...)
	return &session{
		manager: m,
		close: func() {
			m.Close()
			cancel()
			<-done
			if err := eng.Close(); err != nil {
				logger.Warn("closing backend", "error", err)
			}
		},
	}, nil
}

func keyringSource(cfg *config.Config) encrypt.KeyringSource {
	return encrypt.KeyringSource{Service: cfg.Keyring.Service, User: cfg.Keyring.User}
}
