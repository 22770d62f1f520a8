package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce drops repeated events for the same file inside this window
const watchDebounce = 100 * time.Millisecond

// Watch invalidates cached rule sets when their files change. It blocks until
// ctx is cancelled. The optional onChange callback receives the rule set name.
func (m *Manager) Watch(ctx context.Context, onChange func(name string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()

	if err := w.Add(m.configDir); err != nil {
		return fmt.Errorf("config: watch %s: %w", m.configDir, err)
	}
	m.logger.Info("watching rules directory", zap.String("dir", m.configDir))

	last := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !isRulesFile(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < watchDebounce {
				continue
			}
			last[event.Name] = now

			name := configName(event.Name)
			m.Invalidate(name)
			m.logger.Info("rules changed", zap.String("name", name), zap.String("op", event.Op.String()))
			if onChange != nil {
				onChange(name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}
