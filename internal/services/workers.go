package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"commandcenter/internal/models"
)

// WorkerSpec describes one assignable worker model.
type WorkerSpec struct {
	ID           models.WorkerModel `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Orchestrator bool               `yaml:"orchestrator" json:"orchestrator"`
}

// workersFile is the on-disk registry shape.
type workersFile struct {
	Workers []WorkerSpec `yaml:"workers"`
}

// WorkerRegistry holds the set of worker models tasks can be assigned to and
// which of them is the orchestrator used for delegated task creation. The
// registry reloads itself when the backing YAML file changes.
type WorkerRegistry struct {
	mu      sync.RWMutex
	path    string
	workers []WorkerSpec
	watcher *fsnotify.Watcher
}

// defaultWorkers is used when no registry file exists.
func defaultWorkers() []WorkerSpec {
	return []WorkerSpec{
		{ID: models.WorkerKimi, Name: "Kimi"},
		{ID: models.WorkerDeepseek, Name: "Deepseek"},
		{ID: models.WorkerGLM, Name: "GLM"},
		{ID: models.WorkerOpus, Name: "Opus", Orchestrator: true},
	}
}

// NewWorkerRegistry loads the registry from path, falling back to the
// built-in worker set when the file is missing.
func NewWorkerRegistry(path string) *WorkerRegistry {
	r := &WorkerRegistry{path: path, workers: defaultWorkers()}
	if err := r.load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ Failed to load workers file %s: %v (using defaults)", path, err)
		}
	}
	return r
}

func (r *WorkerRegistry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	var file workersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse workers YAML: %w", err)
	}
	if len(file.Workers) == 0 {
		return fmt.Errorf("workers file %s defines no workers", r.path)
	}

	r.mu.Lock()
	r.workers = file.Workers
	r.mu.Unlock()

	log.Printf("✅ Worker registry loaded: %d models from %s", len(file.Workers), r.path)
	return nil
}

// Watch reloads the registry whenever the backing file is rewritten.
// Watches the containing directory so editor rename-on-save is caught.
func (r *WorkerRegistry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.watcher = watcher

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(r.path) {
					continue
				}
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					if err := r.load(); err != nil {
						log.Printf("⚠️ Worker registry reload failed: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ Worker registry watcher error: %v", err)
			}
		}
	}()

	log.Printf("👀 Watching %s for worker registry changes", r.path)
	return nil
}

// Close stops the file watcher.
func (r *WorkerRegistry) Close() {
	if r.watcher != nil {
		r.watcher.Close()
	}
}

// Workers returns a copy of the current worker set.
func (r *WorkerRegistry) Workers() []WorkerSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]WorkerSpec, len(r.workers))
	copy(out, r.workers)
	return out
}

// Known reports whether m is a registered worker model.
func (r *WorkerRegistry) Known(m models.WorkerModel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workers {
		if w.ID == m {
			return true
		}
	}
	return false
}

// Orchestrator returns the worker model used for delegated task creation.
func (r *WorkerRegistry) Orchestrator() models.WorkerModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workers {
		if w.Orchestrator {
			return w.ID
		}
	}
	// A registry without an orchestrator falls back to the built-in tier.
	return models.WorkerOpus
}

// IsOrchestrator reports whether m is the orchestrator model.
func (r *WorkerRegistry) IsOrchestrator(m models.WorkerModel) bool {
	return m == r.Orchestrator()
}
