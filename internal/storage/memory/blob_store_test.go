package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	uri, err := s.PutObject(context.Background(), "dl/file.bin", "application/octet-stream", strings.NewReader("content"))
	require.NoError(t, err)
	require.Equal(t, "memory://dl/file.bin", uri)

	data, ct, ok := s.Object("dl/file.bin")
	require.True(t, ok)
	require.Equal(t, "content", string(data))
	require.Equal(t, "application/octet-stream", ct)

	data[0] = 'C'
	again, _, _ := s.Object("dl/file.bin")
	require.Equal(t, "content", string(again))

	_, _, ok = s.Object("missing")
	require.False(t, ok)
}

func TestBlobStorePutObjectErrors(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	_, err := s.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)

	_, err = s.PutObject(context.Background(), "p", "", iotest.ErrReader(errors.New("read failed")))
	require.ErrorContains(t, err, "read failed")
}
