package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/plansync/pkg/config"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestRemoteConfig_DisabledSkipsValidation(t *testing.T) {
	cfg := RemoteConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled remote should pass: %v", err)
	}
}

func TestRemoteConfig_EnabledNeedsRepo(t *testing.T) {
	cfg := RemoteConfig{Enabled: true, Owner: "alice", Path: "data/shared-project-data.json"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("enabled remote without repo should fail")
	}
	if !strings.Contains(err.Error(), "repo") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSyncConfig_BadSchedule(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sync.DeepSchedule = "every now and then"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid cron spec should fail validation")
	}
}

func TestSyncConfig_EmptyScheduleDisablesJob(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sync.RemotePullSchedule = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty schedule should pass: %v", err)
	}
}

func TestSyncConfig_MaxBelowMin(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sync.MinInterval = time.Minute
	cfg.Sync.MaxInterval = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("max interval below min should fail")
	}
}

func TestSyncConfig_ManualRPSPositive(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sync.ManualRPS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero manual rps should fail")
	}
}

func TestLoadYAMLWithEnv(t *testing.T) {
	t.Setenv("PLANSYNC_TEST_TOKEN", "ghp_secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
workspace:
  path: /tmp/research
storage:
  sqlite_path: /tmp/plansync.db
remote:
  enabled: true
  owner: alice
  repo: research
  path: data/shared-project-data.json
  token: ${PLANSYNC_TEST_TOKEN}
sync:
  min_interval: 2s
  max_interval: 2m
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Remote.Token != "ghp_secret" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Sync.MinInterval != 2*time.Second || cfg.Sync.MaxInterval != 2*time.Minute {
		t.Errorf("sync intervals = %v/%v", cfg.Sync.MinInterval, cfg.Sync.MaxInterval)
	}
	// Unset fields keep their defaults.
	if cfg.Sync.LightSchedule == "" || cfg.Storage.QuotaBytes == 0 {
		t.Errorf("defaults lost: %+v", cfg.Sync)
	}
}

func TestDefaultRemotePathMatchesSharedDocument(t *testing.T) {
	if got := NewDefaultConfig().Remote.Path; got != "data/shared-project-data.json" {
		t.Errorf("remote path = %q", got)
	}
}
