package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Storage.Driver != StoragePostgres || !cfg.DB.Migrate {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Routing.OptimizerTimeout != 10*time.Second || cfg.Settings.CacheTTL != time.Minute {
		t.Fatalf("durations = %v %v", cfg.Routing.OptimizerTimeout, cfg.Settings.CacheTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRIPMERGE_HTTP_ADDR", ":9090")
	t.Setenv("TRIPMERGE_STORAGE_DRIVER", "MEMORY")
	t.Setenv("TRIPMERGE_ROUTING_OPTIMIZER_TIMEOUT", "3s")
	t.Setenv("TRIPMERGE_REDIS_DB", "2")
	t.Setenv("TRIPMERGE_HTTP_ALLOWED_ORIGINS", "https://ops.example.com, https://admin.example.com,")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Storage.Driver != StorageMemory || cfg.Redis.DB != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Routing.OptimizerTimeout != 3*time.Second {
		t.Fatalf("timeout = %v", cfg.Routing.OptimizerTimeout)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("origins = %q", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRIPMERGE_STORAGE_DRIVER", "sqlite")
	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
