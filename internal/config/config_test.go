package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classlens.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvVar, "")
	t.Setenv("HOME", "/home/tester")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.State != "/home/tester/.cache/classlens" {
		t.Fatalf("unexpected state dir %q", cfg.Paths.State)
	}
	if cfg.Cache.Capacity != 75 || cfg.Debounce() != 250*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.UsageDB() != "/home/tester/.cache/classlens/usages.db" {
		t.Fatalf("unexpected usage db %q", cfg.UsageDB())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLASSLENS_TEST_DIR", "/tmp/cl")
	path := writeConfig(t, `
paths:
  state: ${CLASSLENS_TEST_DIR}/state
cache:
  capacity: 10
pipeline:
  debounce: 50ms
decompiler:
  command: [java, -jar, "${CLASSLENS_MISSING:-/opt/vf.jar}"]
index:
  prefixes: [net/example/]
diff:
  checksum: digest
workers: 3
exclude:
  - META-INF/
`)
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.State != "/tmp/cl/state" {
		t.Fatalf("unexpected state dir %q", cfg.Paths.State)
	}
	if cfg.Cache.Capacity != 10 || cfg.Debounce() != 50*time.Millisecond || cfg.Workers != 3 {
		t.Fatalf("unexpected values %+v", cfg)
	}
	if strings.Join(cfg.Decompiler.Command, " ") != "java -jar /opt/vf.jar" {
		t.Fatalf("unexpected command %v", cfg.Decompiler.Command)
	}
	if cfg.Diff.Checksum != "digest" || cfg.Diff.Context != 3 {
		t.Fatalf("unexpected diff config %+v", cfg.Diff)
	}
	if len(cfg.Index.Prefixes) != 1 || len(cfg.Exclude) != 1 {
		t.Fatalf("unexpected lists %+v %+v", cfg.Index, cfg.Exclude)
	}
	if cfg.DecompileTimeout() != time.Minute {
		t.Fatalf("expected default timeout, got %v", cfg.DecompileTimeout())
	}
}

func TestFlagWinsOverEnv(t *testing.T) {
	t.Setenv(EnvVar, "/does/not/exist.yaml")
	path := writeConfig(t, "cache:\n  capacity: 5\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Capacity != 5 {
		t.Fatalf("expected flag config, got %+v", cfg.Cache)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
cache:
  capacity: 0
pipeline:
  debounce: soon
diff:
  checksum: md5
`)
	_, err := LoadFile(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"cache.capacity", "pipeline.debounce", "diff.checksum"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
