package jobutil

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignUnstartedCommand(t *testing.T) {
	require.NoError(t, Init())
	require.NoError(t, Init())
	assert.NoError(t, Assign(nil))
	assert.NoError(t, Assign(exec.Command("ffmpeg")))
	assert.NoError(t, Close())
	assert.NoError(t, Close())
}
