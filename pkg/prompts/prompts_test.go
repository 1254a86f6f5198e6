package prompts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_LanguageFallback(t *testing.T) {
	set := prompts.Defaults()

	de, ok := set.Prompt(prompts.Synthesis, "de")
	require.True(t, ok)
	assert.Contains(t, de, "Deutsch")

	fr, ok := set.Prompt(prompts.Synthesis, "fr")
	require.True(t, ok)
	def, _ := set.Prompt(prompts.Synthesis, prompts.DefaultLang)
	assert.Equal(t, def, fr)

	_, ok = set.Prompt("missing", "en")
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	out, err := prompts.Render(prompts.Defaults(), prompts.PlainChat, "en", map[string]any{
		"Language": "en",
		"Message":  "hello",
		"History": []map[string]string{
			{"Role": "user", "Content": "hi"},
			{"Role": "assistant", "Content": "hey"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "user: hi")
	assert.Contains(t, out, "assistant: hey")
	assert.Contains(t, out, "user: hello")

	_, err = prompts.Render(prompts.Set{"bad": {prompts.DefaultLang: "{{.Oops"}}, "bad", "en", nil)
	assert.ErrorContains(t, err, "failed to parse prompt")

	_, err = prompts.Render(prompts.Set{}, "nope", "en", nil)
	assert.ErrorContains(t, err, "not found")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource_YAMLWithFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	writeFile(t, path, `
prompts:
  synthesis:
    default: "custom {{.Message}}"
    it: "italiano {{.Message}}"
`)

	src, err := prompts.NewFileSource(path)
	require.NoError(t, err)

	got, ok := src.Prompt(prompts.Synthesis, "it")
	require.True(t, ok)
	assert.Equal(t, "italiano {{.Message}}", got)

	got, _ = src.Prompt(prompts.Synthesis, "en")
	assert.Equal(t, "custom {{.Message}}", got)

	_, ok = src.Prompt(prompts.IntentExtraction, "en")
	assert.True(t, ok, "names missing from the file use the defaults")
}

func TestFileSource_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	writeFile(t, path, `{"prompts": {"plain_chat": {"default": "json {{.Message}}"}}}`)

	src, err := prompts.NewFileSource(path)
	require.NoError(t, err)

	out, err := prompts.Render(src, prompts.PlainChat, "en", map[string]any{"Message": "x"})
	require.NoError(t, err)
	assert.Equal(t, "json x", out)
}

func TestFileSource_LoadErrors(t *testing.T) {
	_, err := prompts.NewFileSource(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read prompts file")

	path := filepath.Join(t.TempDir(), "broken.yaml")
	writeFile(t, path, "prompts: [unclosed")
	_, err = prompts.NewFileSource(path)
	assert.ErrorContains(t, err, "failed to parse prompts file")
}

func TestFileSource_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	writeFile(t, path, "prompts:\n  synthesis:\n    default: v1\n")

	src, err := prompts.NewFileSource(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "prompts:\n  synthesis:\n    default: v2\n")

	assert.Eventually(t, func() bool {
		got, _ := src.Prompt(prompts.Synthesis, "en")
		return got == "v2"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
