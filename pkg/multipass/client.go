// Package multipass wraps the multipass command-line tool, the external
// system that owns VM lifecycle. Everything here shells out; no hypervisor
// logic lives in this repository.
package multipass

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Instance is the descriptor multipass reports for a VM.
type Instance struct {
	Name    string   `json:"name"`
	State   string   `json:"state"`
	Release string   `json:"release"`
	IPv4    []string `json:"ipv4"`
}

// LaunchSpec describes the VM to create.
type LaunchSpec struct {
	Name      string
	CPUs      int
	Memory    string // e.g. "2G"
	Disk      string // e.g. "20G"
	Image     string // e.g. "22.04"
	CloudInit string // path to the provisioning payload file
}

// Client is the operation surface this repository needs from multipass.
type Client interface {
	// List returns all instances multipass knows about.
	List(ctx context.Context) ([]Instance, error)

	// Launch creates a new instance and returns once it exists. Guest-side
	// provisioning may still be running when Launch returns.
	Launch(ctx context.Context, spec LaunchSpec) error

	// Exec runs argv inside the named instance and returns combined output.
	Exec(ctx context.Context, name string, argv []string) (string, error)

	// Info returns the descriptor for the named instance.
	Info(ctx context.Context, name string) (*Instance, error)
}

// runner executes the multipass binary with args and returns stdout.
// Extracted so tests can replay canned responses without the binary.
type runner func(ctx context.Context, args ...string) ([]byte, error)

// CLIClient implements Client by invoking the multipass binary.
type CLIClient struct {
	BinaryPath string
	run        runner
}

// NewCLIClient locates the multipass binary on PATH.
func NewCLIClient() (*CLIClient, error) {
	path, err := exec.LookPath("multipass")
	if err != nil {
		return nil, errors.Errorf("finding multipass executable: %w", err)
	}

	c := &CLIClient{BinaryPath: path}
	c.run = c.execRun
	return c, nil
}

func (c *CLIClient) execRun(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.Errorf("running multipass %s: %s: %w", args[0], output, err)
	}
	return output, nil
}

// listResponse mirrors `multipass list --format json`.
type listResponse struct {
	List []Instance `json:"list"`
}

// infoResponse mirrors `multipass info <name> --format json`.
type infoResponse struct {
	Info map[string]Instance `json:"info"`
}

func (c *CLIClient) List(ctx context.Context) ([]Instance, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("Listing multipass instances")

	output, err := c.run(ctx, "list", "--format", "json")
	if err != nil {
		return nil, errors.Errorf("listing instances: %w", err)
	}

	var resp listResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, errors.Errorf("parsing instance list: %w", err)
	}
	return resp.List, nil
}

func (c *CLIClient) Launch(ctx context.Context, spec LaunchSpec) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("name", spec.Name).
		Int("cpus", spec.CPUs).
		Str("memory", spec.Memory).
		Str("disk", spec.Disk).
		Str("image", spec.Image).
		Msg("Launching instance")

	args := []string{
		"launch", spec.Image,
		"--name", spec.Name,
		"--cpus", strconv.Itoa(spec.CPUs),
		"--memory", spec.Memory,
		"--disk", spec.Disk,
		"--cloud-init", spec.CloudInit,
	}

	if _, err := c.run(ctx, args...); err != nil {
		return errors.Errorf("launching instance %s: %w", spec.Name, err)
	}
	return nil
}

func (c *CLIClient) Exec(ctx context.Context, name string, argv []string) (string, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("name", name).Strs("command", argv).Msg("Executing command in instance")

	args := append([]string{"exec", name, "--"}, argv...)
	output, err := c.run(ctx, args...)
	if err != nil {
		return "", errors.Errorf("executing command in %s: %w", name, err)
	}
	return string(output), nil
}

func (c *CLIClient) Info(ctx context.Context, name string) (*Instance, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("name", name).Msg("Querying instance info")

	output, err := c.run(ctx, "info", name, "--format", "json")
	if err != nil {
		return nil, errors.Errorf("querying info for %s: %w", name, err)
	}

	var resp infoResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, errors.Errorf("parsing info for %s: %w", name, err)
	}

	inst, ok := resp.Info[name]
	if !ok {
		return nil, errors.Errorf("instance %s not present in info output", name)
	}
	inst.Name = name
	return &inst, nil
}
