package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twinfer/cbin-plugin/pkg/cbin"
)

const settingsText = "[Settings]\nVolume = 5, 1.5, Loud\n\n"

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run(append([]string{"cbintool"}, args...))
	return stdout.String(), stderr.String(), err
}

func writeText(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "settings.txt")
	require.NoError(t, os.WriteFile(path, []byte(settingsText), 0o644))
	return path
}

func TestEncryptThenDecrypt(t *testing.T) {
	dir := t.TempDir()
	textPath := writeText(t, dir)

	stdout, _, err := runApp(t, "encrypt", textPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Number of Text Tokens: 3")

	encrypted := textPath + "_encrypted.bin"
	require.FileExists(t, encrypted)
	require.FileExists(t, textPath+"_reconstructed.bin")

	// Decrypt is the default action.
	stdout, _, err = runApp(t, encrypted)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Text file saved as: "+encrypted+".txt")

	text, err := os.ReadFile(encrypted + ".txt")
	require.NoError(t, err)
	assert.Equal(t, settingsText, string(text))
	assert.FileExists(t, encrypted+"_decrypted.bin")
}

func TestCustomKey(t *testing.T) {
	dir := t.TempDir()
	textPath := writeText(t, dir)

	_, _, err := runApp(t, "--key", "A5", "encrypt", textPath)
	require.NoError(t, err)

	data, err := os.ReadFile(textPath + "_encrypted.bin")
	require.NoError(t, err)
	doc, err := cbin.Decode(data, cbin.WithKey([]byte{0xA5}))
	require.NoError(t, err)
	assert.Equal(t, settingsText, cbin.ToText(doc))

	_, _, err = runApp(t, "-k", "A5", "decrypt", textPath+"_encrypted.bin")
	require.NoError(t, err)
	text, err := os.ReadFile(textPath + "_encrypted.bin.txt")
	require.NoError(t, err)
	assert.Equal(t, settingsText, string(text))
}

func TestInvalidKey(t *testing.T) {
	_, _, err := runApp(t, "--key", "xyz", "headers", "whatever")
	require.Error(t, err)
	assert.ErrorIs(t, err, cbin.ErrInvalidKey)
}

func TestHeadersCommand(t *testing.T) {
	dir := t.TempDir()
	textPath := writeText(t, dir)
	_, _, err := runApp(t, "encrypt", textPath)
	require.NoError(t, err)

	stdout, _, err := runApp(t, "headers", filepath.Join(dir, "*"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "43-42-49-4E-"))
	assert.True(t, strings.HasSuffix(lines[0], " :  "+textPath+"_encrypted.bin"))
	assert.Equal(t, "The following files were not cbins:", lines[1])
	assert.Equal(t, "    "+textPath, lines[2])
	assert.Equal(t, "    "+textPath+"_reconstructed.bin", lines[3])
}

func TestInspectJSON(t *testing.T) {
	dir := t.TempDir()
	textPath := writeText(t, dir)
	_, _, err := runApp(t, "encrypt", textPath)
	require.NoError(t, err)

	stdout, _, err := runApp(t, "inspect", "--format", "json", textPath+"_encrypted.bin")
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &m))
	assert.Equal(t, true, m["success"])
	assert.Len(t, m["sections"], 1)
}

func TestPerFileErrorsDoNotFail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.bin")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))

	stdout, stderr, err := runApp(t, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not a CBIN file: "+path)
	assert.Contains(t, stderr, "File failed")
}

func TestConfigFileLogLevel(t *testing.T) {
	dir := t.TempDir()
	textPath := writeText(t, dir)
	configPath := filepath.Join(dir, "cbin.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: debug\n"), 0o644))

	_, stderr, err := runApp(t, "--config", configPath, "encrypt", textPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Batch finished")

	_, stderr, err = runApp(t, "--config", configPath, "--log-level", "error", "encrypt", textPath)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "Batch finished")
}

func TestNoArgumentsShowsHelp(t *testing.T) {
	stdout, _, err := runApp(t)
	require.NoError(t, err)
	assert.Contains(t, stdout, "cbintool")
	assert.Contains(t, stdout, "encrypt")
}
