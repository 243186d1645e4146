// Package cloudinit synthesizes the provisioning payload handed to
// multipass: a static #cloud-config template plus a generated section
// describing the desktop user account.
package cloudinit

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// TemplateEnvVar overrides the template search path when set.
const TemplateEnvVar = "RDPCTL_TEMPLATE"

// templateName is the template filename looked up relative to the working
// directory and the executable.
const templateName = "rdp.yaml"

// User is a cloud-config user entry.
type User struct {
	Name       string   `yaml:"name"`
	Groups     string   `yaml:"groups"`
	Sudo       string   `yaml:"sudo"`
	Shell      string   `yaml:"shell"`
	LockPasswd bool     `yaml:"lock_passwd"`
	Passwd     string   `yaml:"passwd"`
	SSHKeys    []string `yaml:"ssh_authorized_keys,omitempty"`
}

// WriteFile is a cloud-config write_files entry.
type WriteFile struct {
	Path        string `yaml:"path"`
	Content     string `yaml:"content"`
	Owner       string `yaml:"owner"`
	Permissions string `yaml:"permissions"`
	Defer       bool   `yaml:"defer"`
}

// userSection is the block appended after the static template. Marshaled as
// its own YAML document fragment so the template stays opaque bytes.
type userSection struct {
	Users      []User      `yaml:"users"`
	WriteFiles []WriteFile `yaml:"write_files"`
}

// FindTemplate locates the static provisioning template. Search order:
// TemplateEnvVar, templates/rdp.yaml under the working directory, rdp.yaml
// beside the executable.
func FindTemplate() (string, error) {
	if path := os.Getenv(TemplateEnvVar); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", errors.Errorf("template %s from %s not found: %w", path, TemplateEnvVar, err)
		}
		return path, nil
	}

	candidates := []string{
		filepath.Join("templates", templateName),
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), templateName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", errors.Errorf("provisioning template %s not found (set %s to override)", templateName, TemplateEnvVar)
}

// Synthesize returns the full provisioning payload: the template bytes with
// one user entry and one session-startup write_files entry appended. The
// user gets the sudo group, a bash shell, and the supplied password hash;
// the write_files entry drops an .xsession starting the XFCE desktop so xrdp
// logins land in a session.
func Synthesize(templatePath, username, passwordHash string) ([]byte, error) {
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, errors.Errorf("reading template %s: %w", templatePath, err)
	}

	section := userSection{
		Users: []User{
			{
				Name:       username,
				Groups:     "sudo",
				Sudo:       "ALL=(ALL) NOPASSWD:ALL",
				Shell:      "/bin/bash",
				LockPasswd: false,
				Passwd:     passwordHash,
			},
		},
		WriteFiles: []WriteFile{
			{
				Path:        "/home/" + username + "/.xsession",
				Content:     "xfce4-session\n",
				Owner:       username + ":" + username,
				Permissions: "0644",
				Defer:       true,
			},
		},
	}

	sectionBytes, err := yaml.Marshal(&section)
	if err != nil {
		return nil, errors.Errorf("marshaling user section: %w", err)
	}

	payload := make([]byte, 0, len(template)+len(sectionBytes)+1)
	payload = append(payload, template...)
	if len(payload) > 0 && payload[len(payload)-1] != '\n' {
		payload = append(payload, '\n')
	}
	payload = append(payload, sectionBytes...)
	return payload, nil
}

// WriteTemp writes the payload to a temp file readable only by the invoking
// user and returns its path plus a cleanup func. The cleanup func must run
// on every exit path; it removes the file and is safe to call after a
// partial failure.
func WriteTemp(ctx context.Context, payload []byte) (string, func(), error) {
	logger := zerolog.Ctx(ctx)

	f, err := os.CreateTemp("", "rdpctl-cloud-init-*.yaml")
	if err != nil {
		return "", nil, errors.Errorf("creating payload file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", f.Name()).Msg("Failed to remove payload file")
		}
	}

	if err := f.Chmod(0600); err != nil {
		f.Close()
		cleanup()
		return "", nil, errors.Errorf("restricting payload file permissions: %w", err)
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		cleanup()
		return "", nil, errors.Errorf("writing payload file: %w", err)
	}

	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, errors.Errorf("closing payload file: %w", err)
	}

	logger.Debug().Str("path", f.Name()).Msg("Provisioning payload written")
	return f.Name(), cleanup, nil
}
