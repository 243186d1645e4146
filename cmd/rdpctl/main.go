// rdpctl launches an Ubuntu VM via multipass and provisions it with an XFCE
// desktop plus an xrdp server, then prints how to connect.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/rdpctl/pkg/multipass"
	"github.com/walteh/rdpctl/pkg/provision"
	"github.com/walteh/rdpctl/pkg/secret"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(log.Logger.WithContext(context.Background()))
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Provisioning failed")
		os.Exit(provision.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	req := provision.DefaultRequest()
	var debug bool

	cmd := &cobra.Command{
		Use:           "rdpctl",
		Short:         "Launch a multipass VM with a remote-desktop environment",
		Long:          "rdpctl creates an Ubuntu VM through multipass, provisions an XFCE desktop and xrdp server via cloud-init, and prints connection details.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return errors.Errorf("%w: unexpected arguments: %v", provision.ErrConfiguration, args)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return run(cmd.Context(), req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", req.Name, "Name for the new instance")
	cmd.Flags().IntVar(&req.CPUs, "cpus", req.CPUs, "Number of CPUs")
	cmd.Flags().StringVar(&req.Memory, "memory", req.Memory, "Memory size, e.g. 2G")
	cmd.Flags().StringVar(&req.Disk, "disk", req.Disk, "Disk size, e.g. 20G")
	cmd.Flags().StringVar(&req.Image, "image", req.Image, "Ubuntu image to launch, e.g. 22.04")
	cmd.Flags().StringVar(&req.Username, "user", req.Username, "Desktop login username")
	cmd.Flags().StringVar(&req.Password, "password", "", "Desktop login password (auto-generated when empty)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// Unknown flags are a configuration failure, distinct from runtime ones.
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return errors.Errorf("%w: %s", provision.ErrConfiguration, err)
	})

	return cmd
}

func run(ctx context.Context, req provision.Request, out io.Writer) error {
	client, err := multipass.NewCLIClient()
	if err != nil {
		return errors.Errorf("%w: %s", provision.ErrDependency, err)
	}

	hasher, err := secret.NewHasher()
	if err != nil {
		return errors.Errorf("%w: %s", provision.ErrDependency, err)
	}

	orch := &provision.Orchestrator{
		Client: client,
		Hasher: hasher,
	}

	report, err := orch.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprint(out, report.Render())
	return nil
}
