package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
)

const SourceCloudinary = "cloudinary"

// ImageRecorder stores uploaded plant images.
type ImageRecorder interface {
	CreatePlantImage(ctx context.Context, img *store.PlantImage) error
}

// Watcher uploads every image written to a capture directory and records it
// as the latest plant image.
type Watcher struct {
	fsWatcher   *fsnotify.Watcher
	dir         string
	uploader    Uploader
	images      ImageRecorder
	allowedExts []string
	settle      time.Duration
	log         *logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func NewWatcher(dir string, up Uploader, images ImageRecorder, log *logger.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher:   fsw,
		dir:         dir,
		uploader:    up,
		images:      images,
		allowedExts: []string{".jpg", ".jpeg", ".png"},
		settle:      500 * time.Millisecond,
		log:         log.WithComponent("capture").WithField("dir", dir),
		pending:     make(map[string]*time.Timer),
	}, nil
}

// Start watches the directory until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		w.fsWatcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	go w.eventLoop(ctx)
	w.log.Info().Msg("Capture watcher started")
	return nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && w.isImage(event.Name) {
				w.schedule(ctx, event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// schedule processes path once it has stopped changing for the settle period.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.settle)
		return
	}

	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := w.ProcessFile(ctx, path); err != nil {
			w.log.Error().Err(err).Str("file", path).Msg("Failed to publish capture")
		}
	})
	w.pending[path] = timer
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
	w.fsWatcher.Close()
	w.log.Info().Msg("Capture watcher stopped")
}

func (w *Watcher) isImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.allowedExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ProcessFile uploads path and records it as the newest plant image.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (*store.PlantImage, error) {
	res, err := w.uploader.Upload(ctx, path)
	if err != nil {
		return nil, err
	}
	img := &store.PlantImage{
		URL:      res.URL,
		PublicID: res.PublicID,
		Source:   SourceCloudinary,
	}
	if err := w.images.CreatePlantImage(ctx, img); err != nil {
		return nil, fmt.Errorf("failed to record plant image: %w", err)
	}
	w.log.Info().Str("file", filepath.Base(path)).Str("url", img.URL).Msg("Published plant capture")
	return img, nil
}
