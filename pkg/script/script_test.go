package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

func writeScript(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
	return path
}

func TestRun_JavaScript_Truthy(t *testing.T) {
	path := writeScript(t, "filter.js", `input.template_vars["transaction.hash"] === "0xabc"`)
	ok, err := Run(context.Background(), model.ScriptLanguageJavaScript, path, nil, 1000,
		map[string]string{"transaction.hash": "0xabc"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_JavaScript_Falsy(t *testing.T) {
	path := writeScript(t, "filter.js", `false`)
	ok, err := Run(context.Background(), model.ScriptLanguageJavaScript, path, nil, 1000, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_JavaScript_Error(t *testing.T) {
	path := writeScript(t, "filter.js", `this is not valid javascript {{{`)
	_, err := Run(context.Background(), model.ScriptLanguageJavaScript, path, nil, 1000, nil)
	assert.Error(t, err)
}

func TestRun_Bash_Truthy(t *testing.T) {
	path := writeScript(t, "filter.sh", "#!/bin/bash\necho true\n")
	ok, err := Run(context.Background(), model.ScriptLanguageBash, path, nil, 2000, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_UnsupportedLanguage(t *testing.T) {
	_, err := Run(context.Background(), model.ScriptLanguage("ruby"), "x", nil, 1000, nil)
	assert.Error(t, err)
}
