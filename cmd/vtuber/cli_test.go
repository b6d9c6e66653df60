package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtuber/internal/config"
	"vtuber/internal/memory"
)

func useTestConfig(t *testing.T, baseURL string) {
	t.Helper()
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.LLM.APIKey = "sk-test"
	c.LLM.BaseURL = baseURL
	c.Memory.StoragePath = filepath.Join(dir, "memory")
	c.Memory.Autosave = ""
	c.Persona.Directory = filepath.Join(dir, "personas")
	c.Persona.Watch = false
	c.Retry.InitialDelay = "1ms"

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func testCommand(input string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func fakeModel(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + reply + `"}}],"usage":{"total_tokens":7}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatSession(t *testing.T) {
	srv := fakeModel(t, "That's awesome!")
	useTestConfig(t, srv.URL)

	cmd, out := testCommand("I passed my exam\n/persona sage\n/history\n/stats\n/nope\n/quit\nnever read\n")
	if err := runChat(cmd, nil); err != nil {
		t.Fatalf("runChat failed: %v", err)
	}

	text := out.String()
	assert.Contains(t, text, "Luna:")
	assert.Contains(t, text, "That's awesome!")
	assert.Contains(t, text, "[excited_jump]")
	assert.Contains(t, text, "Sage:")
	assert.Contains(t, text, "I passed my exam")
	assert.Contains(t, text, "memory: 2/100 entries")
	assert.Contains(t, text, "unknown command: /nope")

	backend, err := memory.NewFileBackend(cfg.Memory.StoragePath, cfg.Memory.Filename)
	require.NoError(t, err)
	store := memory.NewStore(cfg.StoreConfig(), nil, memory.WithBackend(backend))
	require.NoError(t, store.Load(context.Background()))
	assert.Equal(t, 2, store.Len())
}

func TestChatEndsAtEOF(t *testing.T) {
	srv := fakeModel(t, "ok")
	useTestConfig(t, srv.URL)

	cmd, out := testCommand("")
	require.NoError(t, runChat(cmd, nil))
	assert.Contains(t, out.String(), "vtuber: openai/")
}

func TestMemoryCommands(t *testing.T) {
	srv := fakeModel(t, "Noted.")
	useTestConfig(t, srv.URL)

	cmd, _ := testCommand("my cat is called Mochi\n/quit\n")
	require.NoError(t, runChat(cmd, nil))

	memoryLimit = 5
	defer func() { memoryLimit = 10 }()

	cmd, out := testCommand("")
	require.NoError(t, memorySearchCmd.RunE(cmd, []string{"mochi"}))
	assert.Contains(t, out.String(), "my cat is called Mochi")

	cmd, out = testCommand("")
	require.NoError(t, memoryClearCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "cleared 2 entries")

	cmd, out = testCommand("")
	require.NoError(t, memoryRecentCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "(nothing yet)")
}

func TestPersonasCommands(t *testing.T) {
	useTestConfig(t, "http://unused")

	cmd, out := testCommand("")
	require.NoError(t, runPersonasList(cmd, nil))
	assert.Contains(t, out.String(), "no personas")

	cmd, out = testCommand("")
	require.NoError(t, runPersonasInit(cmd, nil))
	assert.Contains(t, out.String(), "wrote 2 default personas")

	cmd, out = testCommand("")
	require.NoError(t, runPersonasList(cmd, nil))
	assert.Contains(t, out.String(), "* Luna")
	assert.Contains(t, out.String(), "Sage")
}

func TestInitCmd(t *testing.T) {
	useTestConfig(t, "http://unused")
	prev := cfgPath
	cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	defer func() { cfgPath = prev }()

	cmd, _ := testCommand("")
	if err := runInit(cmd, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if _, err := os.Stat(filepath.Join(cfg.Persona.Directory, "luna.yaml")); err != nil {
		t.Errorf("default personas were not written: %v", err)
	}

	cmd, out := testCommand("")
	if err := runInit(cmd, nil); err != nil {
		t.Errorf("runInit second run failed: %v", err)
	}
	assert.Contains(t, out.String(), "already exists")
}
