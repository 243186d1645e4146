// Package provision drives the single create-and-report run: validate the
// request, make a credential, synthesize the cloud-init payload, hand VM
// creation to multipass, and report connection details.
package provision

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/rdpctl/pkg/cloudinit"
	"github.com/walteh/rdpctl/pkg/multipass"
	"github.com/walteh/rdpctl/pkg/secret"
)

// RDPPort is the standard remote-desktop port reported to the operator.
const RDPPort = 3389

// Request describes the VM to provision.
type Request struct {
	Name     string
	CPUs     int
	Memory   string
	Disk     string
	Image    string
	Username string
	Password string // empty means auto-generate
}

// DefaultRequest returns a Request with the documented flag defaults.
func DefaultRequest() Request {
	return Request{
		Name:     "rdp-vm",
		CPUs:     2,
		Memory:   "2G",
		Disk:     "20G",
		Image:    "22.04",
		Username: "rdpuser",
	}
}

// Hasher hashes a plaintext password into a form cloud-init accepts.
type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
}

// Orchestrator runs the provisioning workflow. It holds no state between
// runs; every Run is a fresh pass through the whole sequence.
type Orchestrator struct {
	Client multipass.Client
	Hasher Hasher

	// TemplatePath overrides template discovery when non-empty.
	TemplatePath string
}

var _ Hasher = (*secret.Hasher)(nil)

// Run executes one provisioning pass and returns the connection report.
// The temporary payload file is removed on every exit path.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	logger := zerolog.Ctx(ctx)

	if err := validate(req); err != nil {
		return nil, err
	}

	templatePath := o.TemplatePath
	if templatePath == "" {
		found, err := cloudinit.FindTemplate()
		if err != nil {
			return nil, errors.Errorf("%w: %s", ErrTemplate, err)
		}
		templatePath = found
	}

	// Existence check. Not atomic against a concurrent creator; multipass
	// itself rejects duplicate names if we lose that race.
	instances, err := o.Client.List(ctx)
	if err != nil {
		return nil, errors.Errorf("checking existing instances: %w", err)
	}
	for _, inst := range instances {
		if inst.Name == req.Name {
			return nil, errors.Errorf("%w: instance %q already exists (state %s)", ErrConflict, req.Name, inst.State)
		}
	}

	password := req.Password
	if password == "" {
		password, err = secret.GeneratePassword()
		if err != nil {
			return nil, errors.Errorf("generating password: %w", err)
		}
		logger.Info().Msg("Generated password for new instance")
	}

	hash, err := o.Hasher.Hash(ctx, password)
	if err != nil {
		return nil, errors.Errorf("hashing password: %w", err)
	}

	payload, err := cloudinit.Synthesize(templatePath, req.Username, hash)
	if err != nil {
		return nil, errors.Errorf("synthesizing payload: %w", err)
	}

	payloadPath, cleanup, err := cloudinit.WriteTemp(ctx, payload)
	if err != nil {
		return nil, errors.Errorf("writing payload: %w", err)
	}
	defer cleanup()

	logger.Info().Str("name", req.Name).Msg("Creating instance")
	if err := o.Client.Launch(ctx, multipass.LaunchSpec{
		Name:      req.Name,
		CPUs:      req.CPUs,
		Memory:    req.Memory,
		Disk:      req.Disk,
		Image:     req.Image,
		CloudInit: payloadPath,
	}); err != nil {
		return nil, errors.Errorf("launching instance: %w", err)
	}

	// Launch returns once the instance exists; provisioning keeps going in
	// the guest. Block separately until cloud-init finishes.
	logger.Info().Str("name", req.Name).Msg("Waiting for provisioning to complete")
	if _, err := o.Client.Exec(ctx, req.Name, []string{"cloud-init", "status", "--wait"}); err != nil {
		return nil, errors.Errorf("waiting for provisioning: %w", err)
	}

	inst, err := o.Client.Info(ctx, req.Name)
	if err != nil {
		return nil, errors.Errorf("querying instance: %w", err)
	}

	address := firstAddress(inst)
	if address == "" {
		return nil, errors.Errorf("%w: instance %q reported no address after provisioning", ErrResolution, req.Name)
	}

	logger.Info().Str("name", req.Name).Str("address", address).Msg("Instance provisioned")

	return &Report{
		Name:     req.Name,
		Address:  address,
		Port:     RDPPort,
		Username: req.Username,
		Password: password,
	}, nil
}

func validate(req Request) error {
	if req.Name == "" {
		return errors.Errorf("%w: instance name must not be empty", ErrConfiguration)
	}
	if req.CPUs <= 0 {
		return errors.Errorf("%w: cpu count must be positive, got %d", ErrConfiguration, req.CPUs)
	}
	if req.Username == "" {
		return errors.Errorf("%w: username must not be empty", ErrConfiguration)
	}
	return nil
}

func firstAddress(inst *multipass.Instance) string {
	for _, addr := range inst.IPv4 {
		if addr != "" {
			return addr
		}
	}
	return ""
}
