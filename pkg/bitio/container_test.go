package bitio

import (
	"os"
	"path/filepath"
	"testing"

	"datamosh/pkg/container"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenTooSmall(t *testing.T) {
	path := writeTempFile(t, []byte{1, 2, 3})
	_, err := Open(path, container.KindAnnexBRaw, StrategyLoad)
	require.ErrorIs(t, err, container.ErrTooSmall)
}

func TestReadRangeBoundsChecked(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, data)

	c, err := Open(path, container.KindAnnexBRaw, StrategyLoad)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.ReadRange(4, 8)
	require.NoError(t, err)
	require.Equal(t, data[4:12], got)

	_, err = c.ReadRange(60, 8)
	require.ErrorIs(t, err, container.ErrRangeError)
}

func TestWriteComposedCopyAndLiteral(t *testing.T) {
	data := []byte("0123456789ABCDEF")
	path := writeTempFile(t, data)

	c, err := Open(path, container.KindAnnexBRaw, StrategyLoad)
	require.NoError(t, err)
	defer c.Close()

	outPath := filepath.Join(t.TempDir(), "out.bin")
	chunks := []Chunk{
		{SrcOffset: 0, Length: 4},
		{Bytes: []byte("XYZ")},
		{SrcOffset: 12, Length: 4},
	}
	require.NoError(t, WriteComposed(c, outPath, chunks))

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "0123XYZCDEF", string(out))
}

func TestWriteComposedNoPartialOutputOnFailure(t *testing.T) {
	data := []byte("0123456789ABCDEF")
	path := writeTempFile(t, data)

	c, err := Open(path, container.KindAnnexBRaw, StrategyLoad)
	require.NoError(t, err)
	defer c.Close()

	outPath := filepath.Join(t.TempDir(), "out.bin")
	chunks := []Chunk{
		{SrcOffset: 0, Length: 4},
		{SrcOffset: 100, Length: 4}, // out of range, forces failure
	}
	err = WriteComposed(c, outPath, chunks)
	require.Error(t, err)

	_, statErr := os.Stat(outPath)
	require.True(t, os.IsNotExist(statErr))
}
