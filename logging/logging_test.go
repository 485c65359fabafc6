package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	l, c, err := New("DEBUG", "")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestNewBadLevel(t *testing.T) {
	_, _, err := New("chatty", "")
	assert.Error(t, err)
}

func TestNewFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "bullseye.log")
	l, c, err := New("info", fn)
	require.NoError(t, err)
	l.WithField("x", 1.5).Info("centroid")
	require.NoError(t, c.Close())
	b, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "centroid"))
	assert.True(t, strings.Contains(string(b), "x=1.5"))
}
