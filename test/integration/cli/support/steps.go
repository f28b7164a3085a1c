package support

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/export"
	"github.com/MeKo-Tech/labelocr/internal/models"
	"github.com/MeKo-Tech/labelocr/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

const commandTimeout = 2 * time.Minute

// RegisterSteps registers every step definition.
func (testCtx *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a blank image "([^"]*)" of (\d+)x(\d+)$`, testCtx.aBlankImage)
	sc.Step(`^a label image "([^"]*)" reading:$`, testCtx.aLabelImageReading)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIs)
	sc.Step(`^tesseract language data for "([^"]*)" is installed$`, testCtx.languageDataIsInstalled)
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRun)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^(\d+) records? should have been written$`, testCtx.recordsShouldHaveBeenWritten)
	sc.Step(`^a record should contain the text "([^"]*)"$`, testCtx.aRecordShouldContainTheText)
}

func (testCtx *TestContext) aBlankImage(name string, width, height int) error {
	return imaging.Save(imaging.New(width, height, color.White), testCtx.Path(name))
}

func (testCtx *TestContext) aLabelImageReading(name string, doc *godog.DocString) error {
	lines := strings.Split(strings.TrimSpace(doc.Content), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	img, _ := testutil.CreateLabelImage(480, 40+len(lines)*26, lines...)
	// Tesseract reads the 7x13 face far better at twice the size.
	return imaging.Save(imaging.Resize(img, img.Bounds().Dx()*2, 0, imaging.Lanczos), testCtx.Path(name))
}

func (testCtx *TestContext) aFileContaining(name, content string) error {
	return os.WriteFile(testCtx.Path(name), []byte(content), 0o600)
}

func (testCtx *TestContext) theEnvironmentVariableIs(name, value string) error {
	testCtx.AddEnvVar(name, value)
	return nil
}

func (testCtx *TestContext) languageDataIsInstalled(lang string) error {
	dir := models.GetTessdataDir("")
	if dir == "" {
		return godog.ErrPending
	}
	if err := models.ValidateLanguageData(dir, models.EngineCode(lang)); err != nil {
		return godog.ErrPending
	}
	return nil
}

func (testCtx *TestContext) iRun(line string) error {
	args := splitArgs(line)
	if len(args) == 0 || args[0] != "labelocr" {
		return fmt.Errorf("command must start with labelocr: %q", line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, testCtx.Binary, args[1:]...) //nolint:gosec // G204: test binary with scenario arguments
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	out, err := cmd.CombinedOutput()
	testCtx.LastCommand = line
	testCtx.LastOutput = string(out)
	testCtx.LastError = err
	testCtx.LastExitCode = 0

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		testCtx.LastExitCode = exitErr.ExitCode()
	case err != nil:
		return fmt.Errorf("failed to run %q: %w", line, err)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command %q exited with %d:\n%s", testCtx.LastCommand, testCtx.LastExitCode, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command %q succeeded unexpectedly:\n%s", testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(text string) error {
	if !strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output does not contain %q:\n%s", text, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains %q:\n%s", text, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if _, err := os.Stat(testCtx.Path(name)); err != nil {
		return fmt.Errorf("expected file %s: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) records() ([]string, error) {
	return filepath.Glob(testCtx.Path("out/json/*.json"))
}

func (testCtx *TestContext) recordsShouldHaveBeenWritten(n int) error {
	files, err := testCtx.records()
	if err != nil {
		return err
	}
	if len(files) != n {
		return fmt.Errorf("expected %d records, found %d", n, len(files))
	}
	return nil
}

func (testCtx *TestContext) aRecordShouldContainTheText(text string) error {
	files, err := testCtx.records()
	if err != nil {
		return err
	}
	var seen []string
	for _, f := range files {
		rec, err := export.ReadRecord(f)
		if err != nil {
			return err
		}
		for _, l := range rec.Lines {
			if strings.Contains(strings.ToUpper(l.Text), strings.ToUpper(text)) {
				return nil
			}
			seen = append(seen, l.Text)
		}
	}
	return fmt.Errorf("no record line contains %q, lines: %q", text, seen)
}
