package sshx

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBufferReadsPumpedData(t *testing.T) {
	buf := newStreamBuffer()
	go buf.pump(strings.NewReader("hello world"))

	require.Eventually(t, buf.ready, time.Second, time.Millisecond)

	data, err := io.ReadAll(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStreamBufferReadBlocksUntilData(t *testing.T) {
	buf := newStreamBuffer()

	pr, pw := io.Pipe()
	go buf.pump(pr)

	done := make(chan string, 1)
	go func() {
		chunk := make([]byte, 16)
		n, _ := buf.Read(chunk)
		done <- string(chunk[:n])
	}()

	select {
	case <-done:
		t.Fatal("read must block while the buffer is empty")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := pw.Write([]byte("late"))
	require.NoError(t, err)

	select {
	case data := <-done:
		assert.Equal(t, "late", data)
	case <-time.After(time.Second):
		t.Fatal("read did not wake up on new data")
	}

	pw.Close()
}

func TestStreamBufferEndOfStream(t *testing.T) {
	buf := newStreamBuffer()
	go buf.pump(strings.NewReader(""))

	require.Eventually(t, buf.ready, time.Second, time.Millisecond,
		"a closed stream is ready so the consumer can observe its end")

	n, err := buf.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}
