package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/texel/engine/core"
)

type AssetKind uint8

const (
	AssetKindNone AssetKind = iota
	AssetKindShader
	AssetKindImage
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindShader:
		return "shader"
	case AssetKindImage:
		return "image"
	}
	return "none"
}

type AssetInfo struct {
	Path     string
	Kind     AssetKind
	Modified time.Time
}

type AssetOp uint8

const (
	AssetCreated AssetOp = iota
	AssetModified
	AssetRemoved
)

func (op AssetOp) String() string {
	switch op {
	case AssetCreated:
		return "created"
	case AssetModified:
		return "modified"
	}
	return "removed"
}

type AssetEvent struct {
	Path string
	Kind AssetKind
	Op   AssetOp
}

const watcherEventBuffer = 64

// Watcher keeps an index of the shader and image files under a content root
// and reports changes to them. Assets are only loaded at startup, so events
// are informational for the render loop.
type Watcher struct {
	root   string
	assets map[string]AssetInfo
	mutex  sync.RWMutex

	done      chan struct{}
	wg        sync.WaitGroup
	fsnotify  *fsnotify.Watcher
	closeOnce sync.Once
	isClosed  bool
	events    chan AssetEvent
}

func NewWatcher(root string) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     filepath.Clean(root),
		assets:   make(map[string]AssetInfo),
		fsnotify: fsWatch,
		events:   make(chan AssetEvent, watcherEventBuffer),
		done:     make(chan struct{}),
	}
	if err := w.watchRecursive(w.root); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Drain returns the events received since the last call without blocking.
func (w *Watcher) Drain() []AssetEvent {
	var out []AssetEvent
	for {
		select {
		case e := <-w.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Assets returns the indexed assets sorted by path.
func (w *Watcher) Assets() []AssetInfo {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	out := make([]AssetInfo, 0, len(w.assets))
	for _, a := range w.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mutex.Lock()
		w.isClosed = true
		w.mutex.Unlock()
		close(w.done)
		w.wg.Wait()
		err = w.fsnotify.Close()
	})
	return err
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			w.handle(e)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := w.watchRecursive(e.Name); err != nil {
				core.LogWarn("asset watcher: failed to watch %s: %s", e.Name, err)
			}
			return
		}
	}

	switch {
	case e.Op&fsnotify.Create != 0:
		w.emit(e.Name, AssetCreated)
	case e.Op&fsnotify.Write != 0:
		w.emit(e.Name, AssetModified)
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.emit(e.Name, AssetRemoved)
		// can't stat a removed path, try to unwatch it in case it was a directory
		_ = w.fsnotify.Remove(e.Name)
	}
}

func (w *Watcher) emit(name string, op AssetOp) {
	rel := w.relative(name)
	kind := determineAssetKind(rel)
	if kind == AssetKindNone {
		return
	}

	w.mutex.Lock()
	if op == AssetRemoved {
		delete(w.assets, rel)
	} else {
		w.assets[rel] = AssetInfo{Path: rel, Kind: kind, Modified: time.Now()}
	}
	w.mutex.Unlock()

	select {
	case w.events <- AssetEvent{Path: rel, Kind: kind, Op: op}:
	default:
		core.LogWarn("asset watcher: dropping event for %s", rel)
	}
}

// watchRecursive adds name and every directory below it, indexing the files found.
func (w *Watcher) watchRecursive(name string) error {
	w.mutex.RLock()
	closed := w.isClosed
	w.mutex.RUnlock()
	if closed {
		return errors.New("asset watcher already closed")
	}

	return filepath.Walk(name, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		rel := w.relative(walkPath)
		if kind := determineAssetKind(rel); kind != AssetKindNone {
			w.mutex.Lock()
			w.assets[rel] = AssetInfo{Path: rel, Kind: kind, Modified: fi.ModTime()}
			w.mutex.Unlock()
		}
		return nil
	})
}

func (w *Watcher) relative(name string) string {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(rel)
}

func determineAssetKind(path string) AssetKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv", ".msl", ".dxil", ".wgsl":
		return AssetKindShader
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return AssetKindImage
	default:
		return AssetKindNone
	}
}
