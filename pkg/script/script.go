// Package script runs a user-provided JavaScript, Python, or Bash script
// against a serialized match, subject to a per-call timeout. JavaScript
// runs in-process via dop251/goja; Python and Bash run as subprocesses via
// os/exec. Trigger scripts and notifier I/O suspend independently of each
// other and are each separately cancelable.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/dop251/goja"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

// Input is the serialized match plus the script's configured arguments,
// handed to a JavaScript script under the global name "input" and to a
// Python or Bash script as JSON on stdin.
type Input struct {
	TemplateVars map[string]string `json:"template_vars"`
	Arguments    []string          `json:"arguments,omitempty"`
}

// Run executes one script to completion or until timeoutMS elapses,
// returning its truthy/falsy result; exceeding the timeout yields falsy
// plus a logged timeout error.
func Run(ctx context.Context, lang model.ScriptLanguage, scriptPath string, args []string, timeoutMS int, templateVars map[string]string) (bool, error) {
	if timeoutMS <= 0 {
		timeoutMS = 5000
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	input := Input{TemplateVars: templateVars, Arguments: args}

	switch lang {
	case model.ScriptLanguageJavaScript:
		return runJS(ctx, scriptPath, input)
	case model.ScriptLanguagePython:
		return runSubprocess(ctx, "python3", append([]string{scriptPath}, args...), input)
	case model.ScriptLanguageBash:
		return runSubprocess(ctx, "bash", append([]string{scriptPath}, args...), input)
	default:
		return false, fmt.Errorf("script: unsupported language %q", lang)
	}
}

// runJS evaluates scriptPath's source with goja, exposing the input under
// the global "input" and reading the script's final expression value as
// the truthy/falsy result.
func runJS(ctx context.Context, scriptPath string, input Input) (bool, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return false, fmt.Errorf("script: reading %s: %w", scriptPath, err)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := vm.Set("input", input); err != nil {
		return false, fmt.Errorf("script: binding input: %w", err)
	}

	done := make(chan struct{})
	var result goja.Value
	var runErr error
	go func() {
		defer close(done)
		result, runErr = vm.RunString(string(src))
	}()

	select {
	case <-done:
		if runErr != nil {
			return false, fmt.Errorf("script: javascript error: %w", runErr)
		}
		return result != nil && result.ToBoolean(), nil
	case <-ctx.Done():
		vm.Interrupt("timeout")
		<-done
		return false, fmt.Errorf("script: timed out: %w", ctx.Err())
	}
}

// runSubprocess runs name with args, writing input as JSON to its stdin and
// treating trimmed stdout equal to "true", "1" or "yes" (case-insensitive)
// as truthy; anything else, or a non-zero exit, is falsy.
func runSubprocess(ctx context.Context, name string, args []string, input Input) (bool, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return false, fmt.Errorf("script: marshaling input: %w", err)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("script: timed out: %w", ctx.Err())
		}
		return false, fmt.Errorf("script: %s exited with error: %w: %s", name, err, stderr.String())
	}

	return parseTruthy(stdout.String()), nil
}

func parseTruthy(out string) bool {
	trimmed := bytes.TrimSpace([]byte(out))
	switch string(bytes.ToLower(trimmed)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
