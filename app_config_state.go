package main

import "snaplock/internal/config"

// getConfigSnapshot returns a copy of the current config protected by cfgMu.
// Config has value-type fields only, so assignment is a full copy.
func (a *App) getConfigSnapshot() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// setConfigSnapshot stores the config protected by cfgMu.
// All write access to App.cfg should go through this helper.
func (a *App) setConfigSnapshot(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}
