// Package models resolves recognition language data on disk and maps the
// configured language codes to the engine's own codes.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default tessdata directory, relative to the project root.
const DefaultTessdataDir = "tessdata"

// EnvTessdataDir overrides the tessdata directory.
const EnvTessdataDir = "LABELOCR_TESSDATA_DIR"

// EnvTessdataPrefix is the variable Tesseract itself honours.
const EnvTessdataPrefix = "TESSDATA_PREFIX"

// trainedDataExt is the file extension of a Tesseract language pack.
const trainedDataExt = ".traineddata"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
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
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// GetTessdataDir returns the tessdata directory from various sources.
// Priority: 1. Explicit dir, 2. LABELOCR_TESSDATA_DIR, 3. TESSDATA_PREFIX,
// 4. Project root + default. An empty string is returned when none of them
// yields an existing directory, letting the engine fall back to its
// compiled-in location.
func GetTessdataDir(dir string) string {
	if dir != "" {
		return dir
	}

	if envDir := os.Getenv(EnvTessdataDir); envDir != "" {
		return envDir
	}
	if envDir := os.Getenv(EnvTessdataPrefix); envDir != "" {
		return envDir
	}

	if projectRoot, err := findProjectRoot(); err == nil {
		candidate := filepath.Join(projectRoot, DefaultTessdataDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}

	return ""
}

// TrainedDataPath returns the language pack path for an engine code.
func TrainedDataPath(dir, engineCode string) string {
	return filepath.Join(GetTessdataDir(dir), engineCode+trainedDataExt)
}

// ValidateLanguageData checks that the language pack for engineCode exists.
// A blank directory is not checked since the engine resolves it itself.
func ValidateLanguageData(dir, engineCode string) error {
	if GetTessdataDir(dir) == "" {
		return nil
	}
	path := TrainedDataPath(dir, engineCode)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("language data not found: %s", path)
	}
	return nil
}
