package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eis.toml")
	manifest := "[project]\nname = \"demo\"\nentry = \"src/app.eis\"\n"
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "demo" || cfg.Project.Entry != "src/app.eis" {
		t.Errorf("got %+v", cfg.Project)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eis.toml")
	if err := os.WriteFile(path, []byte("[project]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Entry != "main.eis" {
		t.Errorf("entry = %q, want default main.eis", cfg.Project.Entry)
	}
	if cfg.Project.Name != filepath.Base(dir) {
		t.Errorf("name = %q, want directory name", cfg.Project.Name)
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "eis.toml"), []byte("[project]\nname = \"up\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, configPath, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if configPath != filepath.Join(root, "eis.toml") {
		t.Errorf("configPath = %q", configPath)
	}
	if cfg.Project.Name != "up" {
		t.Errorf("name = %q", cfg.Project.Name)
	}
	if ProjectRoot(configPath) != root {
		t.Errorf("ProjectRoot = %q, want %q", ProjectRoot(configPath), root)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	cfg, configPath, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if configPath != "" {
		t.Errorf("configPath = %q, want empty", configPath)
	}
	if cfg.Project.Entry != "main.eis" {
		t.Errorf("default entry = %q", cfg.Project.Entry)
	}
}
