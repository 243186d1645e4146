package cloudinit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testTemplate = `#cloud-config
package_update: true
packages:
  - xfce4
  - xrdp
`

// chdir changes the working directory for the duration of the test,
// standing in for t.Chdir which needs Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rdp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testTemplate), 0644))
	return path
}

func TestSynthesize(t *testing.T) {
	path := writeTemplate(t)

	payload, err := Synthesize(path, "rdpuser", "$6$salt$hash")
	require.NoError(t, err, "should synthesize payload")

	assert.True(t, strings.HasPrefix(string(payload), "#cloud-config"),
		"payload should keep the template header")

	// The whole payload must still parse as a single cloud-config document.
	var doc struct {
		Packages   []string    `yaml:"packages"`
		Users      []User      `yaml:"users"`
		WriteFiles []WriteFile `yaml:"write_files"`
	}
	require.NoError(t, yaml.Unmarshal(payload, &doc), "payload should parse as YAML")

	assert.Equal(t, []string{"xfce4", "xrdp"}, doc.Packages, "template content should survive")

	require.Len(t, doc.Users, 1, "payload should contain exactly one user entry")
	user := doc.Users[0]
	assert.Equal(t, "rdpuser", user.Name)
	assert.Equal(t, "sudo", user.Groups)
	assert.Equal(t, "/bin/bash", user.Shell)
	assert.False(t, user.LockPasswd, "account must not be locked")
	assert.Equal(t, "$6$salt$hash", user.Passwd)

	require.Len(t, doc.WriteFiles, 1, "payload should contain exactly one write_files entry")
	wf := doc.WriteFiles[0]
	assert.Equal(t, "/home/rdpuser/.xsession", wf.Path)
	assert.Equal(t, "rdpuser:rdpuser", wf.Owner, "owner should match the requested username")
	assert.Equal(t, "xfce4-session\n", wf.Content)
}

func TestSynthesizeMissingTemplate(t *testing.T) {
	_, err := Synthesize(filepath.Join(t.TempDir(), "absent.yaml"), "rdpuser", "hash")
	require.Error(t, err, "missing template should fail")
}

func TestFindTemplate(t *testing.T) {
	t.Run("EnvOverride", func(t *testing.T) {
		path := writeTemplate(t)
		t.Setenv(TemplateEnvVar, path)

		found, err := FindTemplate()
		require.NoError(t, err)
		assert.Equal(t, path, found)
	})

	t.Run("EnvOverrideMissing", func(t *testing.T) {
		t.Setenv(TemplateEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := FindTemplate()
		require.Error(t, err, "env override pointing nowhere should fail")
	})

	t.Run("WorkingDirectory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "rdp.yaml"), []byte(testTemplate), 0644))
		chdir(t, dir)

		found, err := FindTemplate()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("templates", "rdp.yaml"), found)
	})
}

func TestWriteTemp(t *testing.T) {
	ctx := zerolog.Nop().WithContext(context.Background())

	path, cleanup, err := WriteTemp(ctx, []byte("#cloud-config\n"))
	require.NoError(t, err, "should write payload file")

	info, err := os.Stat(path)
	require.NoError(t, err, "payload file should exist before cleanup")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "payload file should be user-only")

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "payload file should be gone after cleanup")

	// Second cleanup is a no-op.
	cleanup()
}
