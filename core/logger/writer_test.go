package logger

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{}

func (failingSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterFansOut(t *testing.T) {
	var a, b bytes.Buffer
	w := newAsyncWriter([]io.Writer{&a, nil, &b}, 16)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Write([]byte("line\n")))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	assert.Equal(t, 50, bytes.Count(a.Bytes(), []byte("line\n")))
	assert.Equal(t, a.String(), b.String())
}

func TestAsyncWriterAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := newAsyncWriter([]io.Writer{&buf}, 0)
	require.NoError(t, w.Write([]byte("kept\n")))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Write([]byte("lost\n")), errWriterClosed)
	assert.NoError(t, w.Flush())
	assert.Equal(t, "kept\n", buf.String())
}

func TestAsyncWriterKeepsFirstError(t *testing.T) {
	w := newAsyncWriter([]io.Writer{failingSink{}}, 1)
	require.NoError(t, w.Write([]byte("boom that does not fit\n")))
	err := w.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Error(t, w.Write([]byte("x")))
}
