package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the catalog whenever a mapping file in its directory
// changes. It blocks until ctx is done. A reload that fails is logged and
// the previous mappings keep serving.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.dir == "" {
		return errors.New("mapping catalog has no directory to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create mapping watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}
	c.logger.Info("watching provider mappings", zap.String("dir", c.dir))

	timer := time.NewTimer(reloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isMappingFile(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("mapping watcher error", zap.Error(err))
		case <-timer.C:
			if err := c.Reload(); err != nil {
				c.logger.Error("provider mapping reload failed, keeping previous mappings", zap.Error(err))
			}
		}
	}
}
