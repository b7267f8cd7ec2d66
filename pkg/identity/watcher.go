package identity

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// KeyWatcher watches the trusted keys directory and loads new author keys as
// they appear. Envelopes buffered on an unknown author are released through
// the OnKeyLoaded callback once the author's key propagates to this device.
type KeyWatcher struct {
	keystore *Keystore
	dir      string
	logger   *slog.Logger

	// OnKeyLoaded is invoked with the author identifier after a new key
	// has been added to the keystore. Optional.
	OnKeyLoaded func(AuthorID)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
	doneCh  chan struct{}
}

// NewKeyWatcher creates a watcher over the given trusted keys directory.
func NewKeyWatcher(ks *Keystore, dir string, logger *slog.Logger) *KeyWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyWatcher{
		keystore: ks,
		dir:      dir,
		logger:   logger.With("component", "identity.watcher"),
	}
}

// Start begins watching. It returns immediately; events are processed on a
// background goroutine until the context is cancelled or Stop is called.
func (kw *KeyWatcher) Start(ctx context.Context) error {
	kw.mu.Lock()
	defer kw.mu.Unlock()

	if kw.running {
		return fmt.Errorf("key watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(kw.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", kw.dir, err)
	}

	kw.watcher = watcher
	kw.running = true
	kw.doneCh = make(chan struct{})

	go kw.loop(ctx)

	kw.logger.Info("watching trusted keys directory", "dir", kw.dir)
	return nil
}

func (kw *KeyWatcher) loop(ctx context.Context) {
	defer close(kw.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-kw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			kw.handleKeyFile(event.Name)
		case err, ok := <-kw.watcher.Errors:
			if !ok {
				return
			}
			kw.logger.Error("watch error", "error", err)
		}
	}
}

func (kw *KeyWatcher) handleKeyFile(path string) {
	author, err := kw.keystore.LoadTrustedKey(path)
	if err != nil {
		// Partially written files are common with fsnotify; the next
		// write event retries.
		kw.logger.Warn("ignoring trusted key file", "path", path, "error", err)
		return
	}

	kw.logger.Info("trusted key loaded", "author", author)
	if kw.OnKeyLoaded != nil {
		kw.OnKeyLoaded(author)
	}
}

// Stop stops the watcher and waits for the event loop to exit.
func (kw *KeyWatcher) Stop() {
	kw.mu.Lock()
	defer kw.mu.Unlock()

	if !kw.running {
		return
	}
	kw.watcher.Close()
	<-kw.doneCh
	kw.running = false
	kw.logger.Info("key watcher stopped")
}
