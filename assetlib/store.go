package assetlib

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// LocalStore is the on-disk download directory. A fsnotify watcher keeps the
// in-memory listing current even when files land out of band (host "open
// downloads folder" workflows, manual cleanup).
type LocalStore struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	files map[string]int64 // name -> size in bytes

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// StoredFile is one downloaded asset file.
type StoredFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// NewLocalStore opens (creating if needed) the download directory at dir and
// starts watching it.
func NewLocalStore(dir string, log *slog.Logger) (*LocalStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	s := &LocalStore{
		dir:   dir,
		log:   log,
		files: make(map[string]int64),
		done:  make(chan struct{}),
	}
	if err := s.rescan(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		// Degrade to scan-on-demand rather than failing the store.
		s.log.Debug("assetlib.watch.unavailable", slog.String("err", err.Error()))
		return s, nil
	}
	if err := w.Add(dir); err != nil {
		s.log.Debug("assetlib.watch.add_fail", slog.String("err", err.Error()))
		_ = w.Close()
		return s, nil
	}
	s.watcher = w
	go s.watch()
	return s, nil
}

// Dir is the absolute download directory path.
func (s *LocalStore) Dir() string { return s.dir }

// Save writes a download into the store via a temp file so partially
// transferred assets never appear under their final name.
func (s *LocalStore) Save(name string, r io.Reader) (StoredFile, error) {
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return StoredFile{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return StoredFile{}, fmt.Errorf("write download: %w", err)
	}

	final := filepath.Join(s.dir, filepath.Base(name))
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return StoredFile{}, fmt.Errorf("finalize download: %w", err)
	}

	s.mu.Lock()
	s.files[filepath.Base(name)] = size
	s.mu.Unlock()

	s.log.Info("assetlib.store.saved",
		slog.String("name", filepath.Base(name)),
		slog.Int64("size", size),
	)
	return StoredFile{Name: filepath.Base(name), Path: final, Size: size}, nil
}

// Has reports whether a file of that name is already downloaded.
func (s *LocalStore) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

// List returns the stored files sorted by name.
func (s *LocalStore) List() []StoredFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StoredFile, 0, len(s.files))
	for name, size := range s.files {
		out = append(out, StoredFile{
			Name: name,
			Path: filepath.Join(s.dir, name),
			Size: size,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TextureMaps lists the map names downloaded for a texture asset, extracted
// from file names of the form "<assetID>_<map>.<ext>". Sorted by name.
func (s *LocalStore) TextureMaps(assetID string) []string {
	prefix := assetID + "_"

	s.mu.Lock()
	defer s.mu.Unlock()

	var maps []string
	for name := range s.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if ext := filepath.Ext(rest); ext != "" {
			rest = strings.TrimSuffix(rest, ext)
		}
		if rest != "" {
			maps = append(maps, rest)
		}
	}
	sort.Strings(maps)
	return maps
}

// Count reports the number of stored files.
func (s *LocalStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Close stops the watcher.
func (s *LocalStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *LocalStore) rescan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan download dir: %w", err)
	}
	files := make(map[string]int64, len(entries))
	for _, e := range entries {
		if e.IsDir() || isTempName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files[e.Name()] = info.Size()
	}
	s.mu.Lock()
	s.files = files
	s.mu.Unlock()
	return nil
}

func (s *LocalStore) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			if isTempName(name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0:
				info, err := os.Stat(ev.Name)
				if err != nil || info.IsDir() {
					// Rename away from the dir also arrives as Rename.
					s.mu.Lock()
					delete(s.files, name)
					s.mu.Unlock()
					continue
				}
				s.mu.Lock()
				s.files[name] = info.Size()
				s.mu.Unlock()
			case ev.Op&fsnotify.Remove != 0:
				s.mu.Lock()
				delete(s.files, name)
				s.mu.Unlock()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Debug("assetlib.watch.error", slog.String("err", err.Error()))
		}
	}
}

func isTempName(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
