package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrlite/cmd/ocr/cmd"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// iRunCommand runs an ocr command line in process. The leading "ocr" is
// optional; the models are replaced by MockModels.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substitute(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) > 0 && parts[0] == "ocr" {
		parts = parts[1:]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	root := cmd.NewRootCommand(cmd.WithBuilderHook(MockModels))
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(parts)
	err := root.ExecuteContext(ctx)

	testCtx.LastStdout = stdout.String()
	testCtx.LastOutput = stdout.String() + stderr.String()
	testCtx.LastError = err
	testCtx.LastExitCode = 0
	if err != nil {
		testCtx.LastExitCode = cmd.ExitCodeError
		testCtx.LastOutput += "Error: " + err.Error() + "\n"
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theExitCodeShouldBe(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("exit code %d, want %d\nOutput: %s", testCtx.LastExitCode, code, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substitute(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContainLines counts the lines of stdout starting with prefix.
func (testCtx *TestContext) theOutputShouldContainLines(n int, prefix string) error {
	count := 0
	for line := range strings.Lines(testCtx.LastStdout) {
		if strings.HasPrefix(line, prefix) {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("found %d lines starting with %q, want %d\nOutput: %s", count, prefix, n, testCtx.LastStdout)
	}
	return nil
}

// theOutputShouldBeValidJSON verifies stdout is a JSON document.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(testCtx.LastStdout)) {
		return fmt.Errorf("output is not valid JSON: %s", testCtx.LastStdout)
	}
	return nil
}

// theJSONShouldContain checks that the JSON output has the key at its top
// level, or in its first element when it is an array.
func (testCtx *TestContext) theJSONShouldContain(key string) error {
	raw := []byte(testCtx.LastStdout)
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return errors.New("JSON array is empty")
		}
		return hasKey(list[0], key)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("failed to parse JSON output: %w", err)
	}
	return hasKey(obj, key)
}

func (testCtx *TestContext) theJSONArrayShouldHaveElements(n int) error {
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &list); err != nil {
		return fmt.Errorf("output is not a JSON array: %w", err)
	}
	if len(list) != n {
		return fmt.Errorf("JSON array has %d elements, want %d", len(list), n)
	}
	return nil
}

func hasKey(obj map[string]any, key string) error {
	if _, ok := obj[key]; !ok {
		return fmt.Errorf("JSON does not contain key %q", key)
	}
	return nil
}

// theErrorShouldMention checks the error returned by the command.
func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("no error, expected one mentioning %q", text)
	}
	if !strings.Contains(strings.ToLower(testCtx.LastError.Error()), strings.ToLower(text)) {
		return fmt.Errorf("error %q does not mention %q", testCtx.LastError, text)
	}
	return nil
}

// anImageWithTextBlocks writes a PNG with n dark text lines.
func (testCtx *TestContext) anImageWithTextBlocks(name string, n int) error {
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return imaging.Save(textImage(n), path)
}

// aFileContaining writes content to name.
func (testCtx *TestContext) aFileContaining(name, content string) error {
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if _, err := os.Stat(testCtx.Path(testCtx.substitute(name))); err != nil {
		return fmt.Errorf("file %s does not exist: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, content string) error {
	data, err := os.ReadFile(testCtx.Path(testCtx.substitute(name)))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), content) {
		return fmt.Errorf("file %s does not contain %q:\n%s", name, content, data)
	}
	return nil
}

// RegisterCommonSteps registers the command and file steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an image "([^"]*)" with (\d+) text lines?$`, testCtx.anImageWithTextBlocks)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)

	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the exit code should be (-?\d+)$`, testCtx.theExitCodeShouldBe)

	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should contain (\d+) lines? starting with "([^"]*)"$`, testCtx.theOutputShouldContainLines)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON array should have (\d+) elements?$`, testCtx.theJSONArrayShouldHaveElements)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}
