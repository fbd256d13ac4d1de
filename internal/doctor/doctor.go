// Package doctor runs startup diagnostics for the `doctor` CLI subcommand.
// Grounded on the teacher's internal/doctor/doctor.go CheckResult/Diagnosis
// shape, re-scoped from "provider keys / WASM runtime / external tools"
// checks to this service's four dependencies: config, DB + migrations,
// cache directory, and the source's OAuth exchange.
package doctor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/pixivbot-go/internal/config"
	"github.com/basket/pixivbot-go/internal/sourceclient"
	"github.com/basket/pixivbot-go/internal/store"
)

// CheckResult is the outcome of one diagnostic check.
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// SystemInfo identifies the runtime the diagnosis ran under.
type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Diagnosis is the full result of a doctor run.
type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

// Run executes every diagnostic check against cfg.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkDatabase,
		checkCacheDir,
		checkSourceAuth,
	}
	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}
	return d
}

// OK reports whether every check passed.
func (d Diagnosis) OK() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return false
		}
	}
	return true
}

func checkConfig(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "configuration not loaded"}
	}
	if err := cfg.Validate(); err != nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: err.Error()}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("bot_mode=%s", cfg.Telegram.BotMode)}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: "configuration not loaded"}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("open/migrate failed: %v", err)}
	}
	defer s.Close()
	return CheckResult{Name: "Database", Status: "PASS", Message: "connected and migrated"}
}

func checkCacheDir(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Cache directory", Status: "FAIL", Message: "configuration not loaded"}
	}
	dir := cfg.Scheduler.CacheDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Name: "Cache directory", Status: "FAIL", Message: fmt.Sprintf("could not create %s: %v", dir, err)}
	}
	probe := filepath.Join(dir, ".doctor_write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return CheckResult{Name: "Cache directory", Status: "FAIL", Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	os.Remove(probe)
	return CheckResult{Name: "Cache directory", Status: "PASS", Message: dir + " is writable"}
}

func checkSourceAuth(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.Pixiv.RefreshToken == "" {
		return CheckResult{Name: "Source auth", Status: "FAIL", Message: "pixiv.refresh_token is not set"}
	}
	client := sourceclient.New(cfg.Pixiv.RefreshToken, &http.Client{Timeout: 10 * time.Second})

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := client.VerifyAuth(checkCtx); err != nil {
		return CheckResult{Name: "Source auth", Status: "FAIL", Message: fmt.Sprintf("token refresh failed: %v", err)}
	}
	return CheckResult{Name: "Source auth", Status: "PASS", Message: "refresh token accepted"}
}
