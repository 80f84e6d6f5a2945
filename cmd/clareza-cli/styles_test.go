package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clareza/clareza/internal/stream"
)

func TestTerminalPublish(t *testing.T) {
	var buf bytes.Buffer
	term := &terminal{out: &buf}

	code := 2
	require.NoError(t, term.Publish(stream.Output("s", stream.Event{Message: "⏳ Processando...", Stream: stream.ChannelSystem})))
	require.NoError(t, term.Publish(stream.Output("s", stream.Event{Message: "resposta", Stream: stream.ChannelStdout})))
	require.NoError(t, term.Publish(stream.Complete("s", "resposta")))
	require.NoError(t, term.Publish(stream.Lifecycle("s", stream.LifecycleTerminated, &code)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "⏳ Processando...")
	require.Equal(t, "resposta", lines[1])
	require.Contains(t, lines[2], "terminated (exit 2)")
}
