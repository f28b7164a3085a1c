// Package support holds the step definitions of the CLI feature suite.
package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastError    error
	LastExitCode int

	// Test environment
	Binary     string
	WorkingDir string
	TempDir    string
	EnvVars    []string
}

// NewTestContext creates a scenario context running binary from a fresh
// temporary directory.
func NewTestContext(binary string) (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "labelocr-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ctx := &TestContext{
		Binary:     binary,
		WorkingDir: tempDir,
		TempDir:    tempDir,
	}
	// Keep every output inside the scenario directory.
	ctx.AddEnvVar("LABELOCR_OUTPUT_RECORDS_DIR", ctx.Path("out/json"))
	ctx.AddEnvVar("LABELOCR_OUTPUT_IMAGES_DIR", ctx.Path("out/images"))
	ctx.AddEnvVar("LABELOCR_OUTPUT_ORIGIN_DIR", ctx.Path("out/images_origin"))
	return ctx, nil
}

// Cleanup removes the scenario directory.
func (testCtx *TestContext) Cleanup() error {
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// Path resolves name inside the scenario directory.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// FindProjectRoot walks up from the working directory to the go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found")
		}
		dir = parent
	}
}

// splitArgs splits a command line on whitespace, keeping double-quoted
// sections together.
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	quoted, started := false, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case r == ' ' && !quoted:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, cur.String())
	}
	return args
}
