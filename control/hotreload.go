// control/hotreload.go
// Reloads the config file into a ConfigStore whenever it changes on disk.

package control

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/internal/log"
)

// Watch reloads path into store on every write until ctx is done. The
// directory is watched rather than the file so editors that replace the
// file by rename are seen too. A file that fails to load or validate is
// logged and the previous config stays in effect. Fields that need a restart
// keep their running values; see ApplyReload.
func Watch(ctx context.Context, path string, store *ConfigStore) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "config watch")
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "config watch")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "config watch %s", abs)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-w.Errors:
			if err != fsnotify.ErrEventOverflow {
				return errors.Wrap(err, "config watch")
			}
			// events lost; reload to be sure
			reload(abs, store)

		case ev := <-w.Events:
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			reload(abs, store)
		}
	}
}

func reload(path string, store *ConfigStore) {
	cfg, err := LoadConfig(path)
	if err != nil {
		log.Warningf("config: reload ignored: %v", err)
		return
	}
	merged, held := ApplyReload(store.Get(), cfg)
	if len(held) > 0 {
		log.Warningf("config: %s: restart required for %s; keeping running values",
			path, strings.Join(held, ", "))
	}
	if err := store.Set(merged); err != nil {
		log.Warningf("config: reload ignored: %v", err)
		return
	}
	log.Infof("config: reloaded %s", path)
}
