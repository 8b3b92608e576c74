// Package config - watcher.go provides config file hot-reload support.
//
// The watcher polls the config file for changes (stat-based, every 5
// seconds) and notifies registered callbacks when mining parameters
// change.
//
// Only the mining configuration is reloadable. Database URL, broker
// credentials, and loop intervals require a process restart.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ConfigWatcher monitors the config file for changes and invokes
// callbacks when mining-related fields change. It uses stat-based
// polling, requiring no filesystem-notification dependency.
type ConfigWatcher struct {
	path    string
	logger  *logrus.Entry
	mu      sync.RWMutex
	current *Config
	lastMod time.Time
	onChange []func(old, new *Config)
	done     chan struct{}
	stopped  bool
}

// NewConfigWatcher creates a watcher for the given config file path.
// initial is the currently loaded config. The watcher does not start
// until Start() is called.
func NewConfigWatcher(path string, initial *Config, logger *logrus.Entry) *ConfigWatcher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ConfigWatcher{
		path:    path,
		logger:  logger.WithField("component", "config-watcher"),
		current: initial,
		done:    make(chan struct{}),
	}
}

// OnChange registers a callback invoked when the config file changes
// and the new config passes validation. Multiple callbacks may be
// registered. Callbacks receive the old and new config values.
func (w *ConfigWatcher) OnChange(fn func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins polling the config file for changes. It returns
// immediately; the watcher runs in a background goroutine. Returns an
// error if the initial file stat fails.
func (w *ConfigWatcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.logger.WithField("path", w.path).Info("watching config file for changes")

	go w.pollLoop()
	return nil
}

// Stop stops the config watcher. Safe to call multiple times.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.done)
		w.logger.Info("stopped")
	}
}

// Current returns the most recently loaded valid config.
func (w *ConfigWatcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ConfigWatcher) pollLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *ConfigWatcher) checkForChanges() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("stat error")
		return
	}

	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("read error")
		return
	}

	newCfg := Config{Loops: DefaultLoopsConfig(), Mining: DefaultMiningConfig(), Health: DefaultHealthConfig()}
	if strings.ToLower(filepath.Ext(w.path)) == ".yaml" || strings.ToLower(filepath.Ext(w.path)) == ".yml" {
		err = yaml.Unmarshal(data, &newCfg)
	} else {
		err = json.Unmarshal(data, &newCfg)
	}
	if err != nil {
		w.logger.WithError(err).Warn("parse error, keeping old config")
		return
	}

	if err := newCfg.Validate(); err != nil {
		w.logger.WithError(err).Warn("validation error, keeping old config")
		return
	}

	w.mu.RLock()
	oldCfg := w.current
	w.mu.RUnlock()

	if !miningConfigChanged(oldCfg.Mining, newCfg.Mining) {
		w.logger.Debug("file changed but mining config unchanged, skipping")
		return
	}

	w.logMiningChanges(oldCfg.Mining, newCfg.Mining)

	w.mu.Lock()
	w.current = &newCfg
	callbacks := make([]func(old, new *Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(oldCfg, &newCfg)
	}
}

func miningConfigChanged(old, new MiningConfig) bool {
	if old.Tau != new.Tau {
		return true
	}
	if old.DefaultLookbackDays != new.DefaultLookbackDays {
		return true
	}
	if old.ContinuousDays != new.ContinuousDays {
		return true
	}
	if len(old.HorizontalGapOptions) != len(new.HorizontalGapOptions) {
		return true
	}
	for i := range old.HorizontalGapOptions {
		if old.HorizontalGapOptions[i] != new.HorizontalGapOptions[i] {
			return true
		}
	}
	return false
}

func (w *ConfigWatcher) logMiningChanges(old, new MiningConfig) {
	if old.Tau != new.Tau {
		w.logger.WithFields(logrus.Fields{"from": old.Tau, "to": new.Tau}).Info("mining.tau changed")
	}
	if old.DefaultLookbackDays != new.DefaultLookbackDays {
		w.logger.WithFields(logrus.Fields{"from": old.DefaultLookbackDays, "to": new.DefaultLookbackDays}).Info("mining.default_lookback_days changed")
	}
	if old.ContinuousDays != new.ContinuousDays {
		w.logger.WithFields(logrus.Fields{"from": old.ContinuousDays, "to": new.ContinuousDays}).Info("mining.continuous_days changed")
	}
}
