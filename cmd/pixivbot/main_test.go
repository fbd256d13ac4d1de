package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/basket/pixivbot-go/internal/doctor"
)

func TestPrintDiagnosis_IncludesEveryResult(t *testing.T) {
	diag := doctor.Diagnosis{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		System:    doctor.SystemInfo{OS: "linux", Arch: "amd64", Go: "go1.24", Version: "v1-test"},
		Results: []doctor.CheckResult{
			{Name: "Config", Status: "PASS", Message: "bot_mode=private"},
			{Name: "Database", Status: "FAIL", Message: "open/migrate failed: boom", Detail: "see logs"},
		},
	}

	var buf bytes.Buffer
	printDiagnosisTo(&buf, diag)

	out := buf.String()
	if !strings.Contains(out, "Config") || !strings.Contains(out, "bot_mode=private") {
		t.Fatalf("expected config result in output, got %q", out)
	}
	if !strings.Contains(out, "see logs") {
		t.Fatalf("expected detail line in output, got %q", out)
	}
}

func TestEncodeJSON_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := encodeJSON(&buf, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"k": "v"`) {
		t.Fatalf("expected encoded field in output, got %q", buf.String())
	}
}
