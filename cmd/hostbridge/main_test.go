package main

import (
	"bytes"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoCommand(t *testing.T) {
	t.Setenv("HOSTBRIDGE_LOG_LEVEL", "error")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"demo"})

	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "movies: 2 titles")
	assert.Contains(t, text, "navigate with 50ms timeout: ")
	assert.Contains(t, text, "request timed out")
	assert.Contains(t, text, "Invalid route format")
	assert.Contains(t, text, `movieSelected: {"id":"1","title":"Heat"}`)
	assert.Contains(t, text, "late replies dropped: 1")
	assert.Contains(t, text, "health: healthy")
}

func TestSendRequiresHostCommand(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send", "movies"})

	assert.Error(t, root.Execute())
}

func TestSendRejectsInvalidPayload(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send", "--host-cmd", "cat", "movies", "{not json"})

	err := root.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload is not valid JSON")
}

func TestListenReceivesLinesWrittenAtStartup(t *testing.T) {
	if _, err := exec.LookPath("printf"); err != nil {
		t.Skip("printf not available")
	}
	t.Setenv("HOSTBRIDGE_LOG_LEVEL", "error")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"listen", "--host-cmd", `printf {"kind":"ready","payload":1}\n`, "ready"})

	require.NoError(t, root.Execute())

	assert.Equal(t, "ready\t1\n", out.String())
}

func TestSendFailsWhenHostExits(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	t.Setenv("HOSTBRIDGE_LOG_LEVEL", "error")
	t.Setenv("HOSTBRIDGE_DEFAULT_TIMEOUT", "0s")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send", "--host-cmd", "true", "movies"})

	done := make(chan error, 1)
	go func() { done <- root.Execute() }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("send kept waiting after the host exited")
	}
}
