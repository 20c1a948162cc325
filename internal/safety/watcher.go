package safety

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchPolicy reloads the policy pack whenever the file at path is rewritten,
// blocking until ctx is cancelled. The parent directory is watched so editors
// that replace the file atomically still trigger a reload. A pack that fails
// to load leaves the active policy untouched.
func (v *Validator) WatchPolicy(ctx context.Context, path string) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch policy directory %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			policy, err := LoadPolicy(path)
			if err != nil {
				v.logger.Warn("safety policy reload failed", "path", path, "error", err)
				continue
			}
			v.SetPolicy(policy)
			v.logger.Info("safety policy reloaded",
				"path", path,
				"allowed_actions", len(policy.AllowedActions),
				"protected_resources", len(policy.ProtectedResources),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn("safety policy watcher error", "error", err)
		}
	}
}
