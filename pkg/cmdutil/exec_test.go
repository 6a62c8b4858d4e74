package cmdutil

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun_Success(t *testing.T) {
	result, err := Run(context.Background(), ExecOptions{}, []string{"echo", "hello"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.OK() {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if strings.TrimSpace(string(result.Output)) != "hello" {
		t.Errorf("Unexpected output: %q", result.Output)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	result, err := Run(context.Background(), ExecOptions{}, []string{"false"})
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}
	if result == nil {
		t.Fatal("Expected result alongside error")
	}
	if result.OK() {
		t.Error("Result should not be OK for non-zero exit")
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	if _, err := Run(context.Background(), ExecOptions{}, nil); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	result, err := Run(context.Background(), ExecOptions{Dir: dir}, []string{"pwd"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := strings.TrimSpace(string(result.Output)); !strings.HasSuffix(got, dir) && got != dir {
		t.Errorf("Expected working directory %q, got %q", dir, got)
	}
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), ExecOptions{Timeout: 100 * time.Millisecond}, []string{"sleep", "5"})
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestParseCommandString(t *testing.T) {
	parts, err := ParseCommandString(`uv sync --group "extra deps"`)
	if err != nil {
		t.Fatalf("ParseCommandString failed: %v", err)
	}
	expected := []string{"uv", "sync", "--group", "extra deps"}
	if len(parts) != len(expected) {
		t.Fatalf("Expected %d parts, got %d: %v", len(expected), len(parts), parts)
	}
	for i := range expected {
		if parts[i] != expected[i] {
			t.Errorf("Part %d: expected %q, got %q", i, expected[i], parts[i])
		}
	}
}

func TestParseCommandString_Invalid(t *testing.T) {
	if _, err := ParseCommandString(`pip install "unterminated`); err == nil {
		t.Error("Expected error for unterminated quote")
	}
	if _, err := ParseCommandString(""); err == nil {
		t.Error("Expected error for empty string")
	}
}

func TestFormatCommand(t *testing.T) {
	got := FormatCommand([]string{"pip", "install", "-r", "my reqs.txt"})
	if !strings.Contains(got, "pip install -r") {
		t.Errorf("Unexpected formatted command: %q", got)
	}
	if !strings.Contains(got, "'my reqs.txt'") {
		t.Errorf("Expected quoted argument in %q", got)
	}

	if FormatCommand(nil) != "<empty command>" {
		t.Error("Expected placeholder for empty command")
	}
}
