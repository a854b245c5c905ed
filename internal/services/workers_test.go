package services

import (
	"os"
	"path/filepath"
	"testing"

	"commandcenter/internal/models"
)

func TestWorkerRegistry_DefaultsWhenFileMissing(t *testing.T) {
	registry := NewWorkerRegistry(filepath.Join(t.TempDir(), "missing.yaml"))

	workers := registry.Workers()
	if len(workers) != 4 {
		t.Fatalf("Expected 4 default workers, got %d", len(workers))
	}
	if !registry.Known(models.WorkerKimi) || !registry.Known(models.WorkerOpus) {
		t.Error("Default workers not registered")
	}
	if registry.Orchestrator() != models.WorkerOpus {
		t.Errorf("Expected opus as default orchestrator, got %q", registry.Orchestrator())
	}
}

func TestWorkerRegistry_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.yaml")
	content := `workers:
  - id: kimi
    name: Kimi
  - id: glm
    name: GLM
    orchestrator: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write workers file: %v", err)
	}

	registry := NewWorkerRegistry(path)

	if len(registry.Workers()) != 2 {
		t.Fatalf("Expected 2 workers, got %d", len(registry.Workers()))
	}
	if registry.Known(models.WorkerDeepseek) {
		t.Error("Unlisted model reported as known")
	}
	if registry.Orchestrator() != models.WorkerGLM {
		t.Errorf("Expected glm orchestrator, got %q", registry.Orchestrator())
	}
	if !registry.IsOrchestrator(models.WorkerGLM) {
		t.Error("IsOrchestrator disagrees with Orchestrator")
	}
}

func TestWorkerRegistry_OrchestratorFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.yaml")
	content := `workers:
  - id: kimi
    name: Kimi
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write workers file: %v", err)
	}

	registry := NewWorkerRegistry(path)
	if registry.Orchestrator() != models.WorkerOpus {
		t.Errorf("Expected opus fallback, got %q", registry.Orchestrator())
	}
}

func TestWorkerRegistry_InvalidFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.yaml")
	if err := os.WriteFile(path, []byte("workers: []"), 0644); err != nil {
		t.Fatalf("Failed to write workers file: %v", err)
	}

	registry := NewWorkerRegistry(path)
	if len(registry.Workers()) != 4 {
		t.Errorf("Empty workers file should keep defaults, got %d workers", len(registry.Workers()))
	}
}
