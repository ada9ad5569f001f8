package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeCmd runs the root command with args and returns captured stdout
// and any error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidTOML(t *testing.T) {
	configPath := writeConfig(t, "matterlog.toml", `
[server]
save_path = "/srv/chat"
sleep_time = 10

[channel.random]
base_url = "http://localhost:4243"

[channel.general]
base_url = "http://localhost:4242/"
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Save path:   /srv/chat",
		"Sleep time:  10s",
		"Status API:  disabled",
		"Channels:    2",
		"#general  http://localhost:4242/api/messages",
		"#random  http://localhost:4243/api/messages",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}

	// channels are listed in name order
	if strings.Index(output, "#general") > strings.Index(output, "#random") {
		t.Errorf("channels not sorted:\n%s", output)
	}
}

func TestRunValidate_ValidYAML(t *testing.T) {
	configPath := writeConfig(t, "matterlog.yaml", `
server:
  status_addr: ":8080"
channel:
  general:
    base_url: http://localhost:4242
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(output, "Status API:  :8080") {
		t.Errorf("output missing status address\nGot: %s", output)
	}
	if !strings.Contains(output, "Sleep time:  5s") {
		t.Errorf("output missing default sleep time\nGot: %s", output)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, "invalid.toml", `
[channel.general]
token = "abc"
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}

	if !strings.Contains(err.Error(), "base_url is required") {
		t.Errorf("error should mention 'base_url is required', got: %v", err)
	}
}

func TestRunValidate_UnsupportedExtension(t *testing.T) {
	configPath := writeConfig(t, "matterlog.ini", "[server]\n")

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for .ini file, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported config file extension") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}

	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.HasPrefix(output, "matterlog dev\n") {
		t.Errorf("unexpected version output: %q", output)
	}
}
