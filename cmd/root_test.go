package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tphakala/floranet-go/internal/conf"
)

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	root := RootCommand(&conf.Settings{})
	root.SetArgs([]string{"hash-password"})
	root.SetIn(strings.NewReader("orchid\n"))
	root.SetOut(&out)

	require.NoError(t, root.Execute())

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("orchid")))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	root := RootCommand(&conf.Settings{})
	root.SetArgs([]string{"hash-password"})
	root.SetIn(strings.NewReader("\n"))
	root.SetOut(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}

func TestConfigShowMasksSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
main:
  name: greenhouse-1
database:
  sqlite:
    path: `+filepath.Join(dir, "floranet.db")+`
mqtt:
  password: hunter2
security:
  admin:
    passwordhash: $2a$10$abcdefghijklmnopqrstuv
`), 0o600))

	var out bytes.Buffer
	settings := &conf.Settings{Version: "1.0.0"}
	root := RootCommand(settings)
	root.SetArgs([]string{"config", "show", "--config", path})
	root.SetOut(&out)

	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "greenhouse-1")
	assert.Contains(t, out.String(), "[REDACTED]")
	assert.NotContains(t, out.String(), "hunter2")
	assert.Equal(t, "1.0.0", settings.Version, "runtime values survive loading")
}

func TestClassifyNeedsImage(t *testing.T) {
	root := RootCommand(&conf.Settings{})
	root.SetArgs([]string{"classify"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}
