package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// FileSource loads rules from a JSON file and hot-reloads on change. The
// loaded set is swapped atomically, so decisions in flight keep the
// snapshot they started with.
type FileSource struct {
	path    string
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	rules []Rule
}

// ruleFile is the on-disk shape.
type ruleFile struct {
	Rules []Rule `json:"rules"`
}

// NewFileSource loads the file once and returns the source. Call Watch to
// enable hot reload.
func NewFileSource(path string) (*FileSource, error) {
	fs := &FileSource{path: path}
	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// RulesFor returns the current snapshot.
func (f *FileSource) RulesFor(ctx context.Context, caller Caller) ([]Rule, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Rule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

// Watch starts watching the rule file's directory for changes. Editors
// replace files rather than writing in place, so the directory is watched
// and events are filtered by name.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", f.path, err)
	}
	f.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := f.reload(); err != nil {
					log.Warn().Err(err).Str("path", f.path).Msg("Rule file reload failed, keeping previous snapshot")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Rule file watcher error")
			}
		}
	}()

	return nil
}

// reload parses the file and swaps the snapshot. A file that fails to
// parse or validate leaves the previous snapshot in place.
func (f *FileSource) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read rule file: %w", err)
	}

	var parsed ruleFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse rule file: %w", err)
	}
	for i := range parsed.Rules {
		if err := parsed.Rules[i].Validate(); err != nil {
			return fmt.Errorf("invalid rule in %s: %w", f.path, err)
		}
	}

	f.mu.Lock()
	f.rules = parsed.Rules
	f.mu.Unlock()

	log.Info().Int("rules", len(parsed.Rules)).Str("path", f.path).Msg("Policy rules loaded")
	return nil
}
