// Package app wires the process: it installs the review store and the
// command router, routes uncaught failures to the logger and mounts the
// command tree.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewctl/internal/store"
)

// ErrNoRoot is returned by Mount when the app has no root command.
var ErrNoRoot = errors.New("app: no root command to mount")

// ErrStateMissing is returned when the router is installed before the state.
var ErrStateMissing = errors.New("app: state must be installed before the router")

// Named is implemented by components that can report a name for logging.
type Named interface {
	Name() string
}

// ErrorHandler receives an uncaught error, the component it came from
// (may be nil) and a short description of where it happened.
type ErrorHandler func(err error, component any, info string)

// RejectionHandler receives the failure of a background task.
type RejectionHandler func(reason error)

// Plugin installs something into the app.
type Plugin interface {
	Install(a *App) error
}

// PluginFunc adapts a function to Plugin.
type PluginFunc func(a *App) error

func (f PluginFunc) Install(a *App) error { return f(a) }

// StoreFactory builds the review store on first use.
type StoreFactory func() (*store.Store, error)

// App is the process root.
type App struct {
	Root *cobra.Command
	Log  *slog.Logger

	onError     ErrorHandler
	onRejection RejectionHandler

	storeOnce    sync.Once
	storeFactory StoreFactory
	store        *store.Store
	storeErr     error
	routed       bool

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates an app around root. Both handlers default to logging
// through log.
func New(root *cobra.Command, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Root: root, Log: log}
	a.onError = a.logError
	a.onRejection = a.logRejection
	a.bgCtx, a.bgCancel = context.WithCancel(context.Background())
	return a
}

// Use installs plugins in order, stopping at the first failure.
func (a *App) Use(plugins ...Plugin) error {
	for _, p := range plugins {
		if err := p.Install(a); err != nil {
			return err
		}
	}
	return nil
}

// OnError replaces the global error handler.
func (a *App) OnError(h ErrorHandler) { a.onError = h }

// OnRejection replaces the background failure handler.
func (a *App) OnRejection(h RejectionHandler) { a.onRejection = h }

// HandleError forwards err to the global error handler.
func (a *App) HandleError(err error, component any, info string) {
	if err == nil {
		return
	}
	a.onError(err, component, info)
}

// Store returns the installed review store, building it on first call.
func (a *App) Store() (*store.Store, error) {
	if a.storeFactory == nil {
		return nil, ErrStateMissing
	}
	a.storeOnce.Do(func() {
		a.store, a.storeErr = a.storeFactory()
	})
	return a.store, a.storeErr
}

// Go runs fn in the background. A returned error or a panic is passed to
// the rejection handler. fn's context is cancelled when the app shuts down.
func (a *App) Go(name string, fn func(ctx context.Context) error) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.onRejection(fmt.Errorf("%s: panic: %v", name, r))
			}
		}()
		if err := fn(a.bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.onRejection(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Mount executes the root command with args and shuts the app down
// afterwards. Command errors are returned; panics inside commands are
// routed to the error handler and returned as errors.
func (a *App) Mount(ctx context.Context, args []string) error {
	if a.Root == nil {
		return ErrNoRoot
	}
	defer a.shutdown()

	a.Root.SetArgs(args)
	return a.Root.ExecuteContext(ctx)
}

func (a *App) shutdown() {
	a.bgCancel()
	a.bg.Wait()
	if a.store != nil {
		a.store.Close()
	}
}

func (a *App) logError(err error, component any, info string) {
	a.Log.Error("unhandled error",
		"error", err,
		"component", ComponentName(component),
		"info", info,
	)
}

func (a *App) logRejection(reason error) {
	a.Log.Error("unhandled background failure", "reason", reason)
}

const notPresent = "not present"

// ComponentName returns the component's name, or "not present" when it has
// none or asking for it fails.
func ComponentName(component any) (name string) {
	defer func() {
		if recover() != nil {
			name = notPresent
		}
	}()
	if n, ok := component.(Named); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return notPresent
}
