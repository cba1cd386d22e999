package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/bitrise-io/go-s3stream/internal/fakes3"
	"github.com/bitrise-io/go-s3stream/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_writerLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &writerLogger{out: &buf}

	l.Debugf("hidden")
	l.Printf("plain %d", 1)
	l.EnableDebugLog(true)
	l.Debugf("shown")

	assert.Equal(t, "plain 1\n\x1b[35;1mshown\x1b[0m\n", buf.String())
}

func Test_commandLogger(t *testing.T) {
	assert.Equal(t, logger, commandLogger(false, true))
	assert.Equal(t, &writerLogger{out: os.Stderr, debug: true}, commandLogger(true, true))
}

func TestDownloadToStdoutKeepsLogsOut(t *testing.T) {
	data := bytes.Repeat([]byte("OBJECTDATA"), 10)
	store := fakes3.New()
	store.Put("bucket", "key", data)

	stdout := captureFile(t, &os.Stdout)
	stderr := captureFile(t, &os.Stderr)

	l := commandLogger(true, true)
	_, err := transfer.Download(context.Background(), store, os.Stdout, transfer.DownloadParams{Bucket: "bucket", Key: "key"}, l)
	require.NoError(t, err)
	l.Warnf("done")

	assert.Equal(t, data, stdout())
	assert.Contains(t, string(stderr()), "Downloading part 1")
}

// captureFile replaces *f with a pipe and returns a function restoring it and returning what was
// written to the pipe.
func captureFile(t *testing.T, f **os.File) func() []byte {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	original := *f
	*f = w

	done := make(chan []byte)
	go func() {
		b, _ := io.ReadAll(r)
		done <- b
	}()

	restored := false
	restore := func() []byte {
		if restored {
			return nil
		}
		restored = true
		*f = original
		_ = w.Close()
		return <-done
	}
	t.Cleanup(func() { restore() })

	return restore
}
