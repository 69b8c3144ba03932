package toolexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Stdout(t *testing.T) {
	requireShell(t)

	out, err := NewExecRunner().Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "printf hello"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireShell(t)

	_, err := NewExecRunner().Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "echo broken >&2; exit 3"},
		Timeout: 5 * time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "broken")
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)

	start := time.Now()
	_, err := NewExecRunner().Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunner_CallerCancel(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := NewExecRunner().Run(ctx, Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: time.Minute,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Command{
		Name:    "definitely-not-a-real-preflight-tool",
		Timeout: time.Second,
	})
	assert.ErrorIs(t, err, ErrToolFailed)
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "gs", Args: []string{"-dSAFER", "in.pdf"}}
	assert.Equal(t, "gs -dSAFER in.pdf", c.String())
}

func TestPathArg(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(wd, "-density.png"), PathArg("-density.png"))
	assert.Equal(t, "/tmp/in.pdf", PathArg("/tmp/in.pdf"))
	assert.False(t, strings.HasPrefix(PathArg("-x"), "-"))
}
