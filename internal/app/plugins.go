package app

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
)

// State installs the review store. The factory runs on first use so it can
// read configuration loaded during command parsing.
func State(factory StoreFactory) Plugin {
	return PluginFunc(func(a *App) error {
		if factory == nil {
			return fmt.Errorf("app: nil store factory")
		}
		a.storeFactory = factory
		return nil
	})
}

// Router installs the command tree: every command's RunE is guarded so a
// panic reaches the global error handler instead of crashing the process.
func Router() Plugin {
	return PluginFunc(func(a *App) error {
		if a.storeFactory == nil {
			return ErrStateMissing
		}
		if a.routed {
			return nil
		}
		if a.Root != nil {
			guard(a.Root)
		}
		routedApp.Store(a)
		a.routed = true
		return nil
	})
}

const guardedAnnotation = "app.guarded"

// routedApp receives panics from guarded commands. Command trees are
// package-level in cobra programs, so the latest routed app owns them.
var routedApp atomic.Pointer[App]

func guard(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil && cmd.Annotations[guardedAnnotation] == "" {
		if cmd.Annotations == nil {
			cmd.Annotations = map[string]string{}
		}
		cmd.Annotations[guardedAnnotation] = "true"
		cmd.RunE = func(c *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s: panic: %v", c.Name(), r)
					if a := routedApp.Load(); a != nil {
						a.HandleError(err, c, "run")
					}
				}
			}()
			return run(c, args)
		}
	}
	for _, sub := range cmd.Commands() {
		guard(sub)
	}
}
