package cli

import (
	"sync"

	"github.com/propscout/propscout/internal/app"
)

var (
	appMu     sync.RWMutex
	globalApp *app.Application
)

// setApp stores the application instance shared by all commands.
func setApp(a *app.Application) {
	appMu.Lock()
	defer appMu.Unlock()
	globalApp = a
}

// getApp returns the shared application instance, or nil before setup.
func getApp() *app.Application {
	appMu.RLock()
	defer appMu.RUnlock()
	return globalApp
}
