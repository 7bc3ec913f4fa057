package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const defaultSettle = 100 * time.Millisecond

// Watcher reports changes to descriptor files in a directory. Bursts of events
// are collapsed into one callback after the directory settles.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	settle   time.Duration
	onChange func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher starts watching dir. onChange runs on its own goroutine.
func NewWatcher(dir string, settle time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{watcher: fw, dir: dir, settle: settle, onChange: onChange}, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	log.Info().Str("path", w.dir).Msg("tool directory watcher started")
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		w.watcher.Close()
		log.Info().Str("path", w.dir).Msg("tool directory watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, fileExt) || event.Op == fsnotify.Chmod {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("tool file changed")
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settle, w.onChange)
}
