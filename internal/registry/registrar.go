// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/pkg/types"
)

type (
	// Options configures a Registrar.
	Options struct {
		// Store is required. The Registrar closes it on Close.
		Store Store
		// Catalog, when set, is notified after every successful Register.
		Catalog *CatalogClient
		// Now defaults to time.Now.
		Now func() time.Time
		// NewID defaults to random UUIDs.
		NewID  func() string
		Logger *slog.Logger
	}

	// Registrar serializes every registry operation on one goroutine.
	Registrar struct {
		store   Store
		catalog *CatalogClient
		now     func() time.Time
		newID   func() string
		logger  *slog.Logger

		requests  chan request
		quit      chan struct{}
		stopped   chan struct{}
		closeOnce sync.Once
		closeErr  error
	}

	request struct {
		ctx  context.Context
		fn   func(ctx context.Context) error
		done chan error
	}
)

// New starts a Registrar over opts.Store.
func New(opts Options) (*Registrar, error) {
	if opts.Store == nil {
		return nil, errors.New("registry: nil store")
	}
	r := &Registrar{
		store:    opts.Store,
		catalog:  opts.Catalog,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   opts.Logger,
		requests: make(chan request),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	go r.loop()
	return r, nil
}

func (r *Registrar) loop() {
	defer close(r.stopped)
	for {
		select {
		case req := <-r.requests:
			req.done <- req.fn(req.ctx)
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the writer goroutine and waits for it to finish.
func (r *Registrar) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case r.requests <- req:
	case <-r.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.done
}

// Register records a module installed at path (project-relative, slash
// separated). An existing entry with the same name is replaced and keeps
// its ID. A failure to persist is returned as *RegistryWriteError; so is a
// failed catalog notification, in which case the returned entry is already
// stored.
func (r *Registrar) Register(ctx context.Context, name types.ModuleName, cat classify.Category, path string, fields Fields) (InstalledModule, error) {
	if ok, errs := name.IsValid(); !ok {
		return InstalledModule{}, &RegistryWriteError{Module: string(name), Target: r.store.Location(), Err: errs[0]}
	}

	var mod InstalledModule
	err := r.do(ctx, func(ctx context.Context) error {
		prev, found, err := r.store.Get(ctx, string(name))
		if err != nil {
			return err
		}
		id := prev.ID
		if !found || id == "" {
			id = r.newID()
		}
		mod = InstalledModule{
			ID:           id,
			Name:         string(name),
			Type:         cat,
			Path:         path,
			Version:      fields.Version,
			Description:  fields.Description,
			Dependencies: slices.Clone(fields.Dependencies),
			InstalledAt:  r.now().UTC(),
			Archive:      fields.Archive,
		}
		return r.store.Put(ctx, mod)
	})
	if err != nil {
		return InstalledModule{}, &RegistryWriteError{Module: string(name), Target: r.store.Location(), Err: err}
	}
	r.logger.Debug("module registered", "module", mod.Name, "type", mod.Type, "path", mod.Path, "id", mod.ID)

	if r.catalog != nil {
		if err := r.catalog.Notify(ctx, mod); err != nil {
			return mod, &RegistryWriteError{Module: mod.Name, Target: r.catalog.Endpoint(), Err: err}
		}
	}
	return mod, nil
}

// List returns every registered module sorted by name.
func (r *Registrar) List(ctx context.Context) ([]InstalledModule, error) {
	var mods []InstalledModule
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		mods, err = r.store.List(ctx)
		return err
	})
	return mods, err
}

// Get returns the module registered under name, or ErrNotFound.
func (r *Registrar) Get(ctx context.Context, name string) (InstalledModule, error) {
	var (
		mod   InstalledModule
		found bool
	)
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		mod, found, err = r.store.Get(ctx, name)
		return err
	})
	if err != nil {
		return InstalledModule{}, err
	}
	if !found {
		return InstalledModule{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return mod, nil
}

// Remove deletes the entry for name, or returns ErrNotFound. Installed files
// are left alone.
func (r *Registrar) Remove(ctx context.Context, name string) error {
	var found bool
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		found, err = r.store.Delete(ctx, name)
		return err
	})
	if err != nil {
		return &RegistryWriteError{Module: name, Target: r.store.Location(), Err: err}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Location describes the underlying store.
func (r *Registrar) Location() string { return r.store.Location() }

// Close stops the writer goroutine and closes the store. Calls after the
// first return the same result.
func (r *Registrar) Close() error {
	r.closeOnce.Do(func() {
		close(r.quit)
		<-r.stopped
		r.closeErr = r.store.Close()
	})
	return r.closeErr
}
