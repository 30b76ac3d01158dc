package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if cfg.WorkspaceRoot == "" || cfg.LogLevel != "INFO" || !cfg.Archive {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `workspace_root: /tmp/cdesk
log_level: DEBUG
backend:
  command: cluster-agent
  args: ["--kubeconfig", "/etc/k8s/config"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkspaceRoot != "/tmp/cdesk" || cfg.LogLevel != "DEBUG" {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.Backend.Command != "cluster-agent" || len(cfg.Backend.Args) != 2 {
		t.Fatalf("backend config lost: %+v", cfg.Backend)
	}
	if cfg.LogPath != filepath.Join("/tmp/cdesk", "clusterdesk.log") {
		t.Fatalf("log path must follow workspace root: %q", cfg.LogPath)
	}
}

func TestLoadMalformedFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("workspace_root: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
