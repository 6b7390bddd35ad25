package tunnelregistry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrongboxRoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteStrongbox(dir, 28100))

	port, err := ReadStrongbox(dir)
	require.NoError(t, err)
	assert.Equal(t, 28100, port)
}

func TestReadStrongboxMissingFileFails(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadStrongbox(dir)
	assert.Error(t, err)
}

func TestRemoveStrongboxIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteStrongbox(dir, 1))

	require.NoError(t, RemoveStrongbox(dir))
	require.NoError(t, RemoveStrongbox(dir))

	_, err := ReadStrongbox(filepath.Join(dir))
	assert.Error(t, err)
}
