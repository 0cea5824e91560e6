package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/edgelesssys/nitro-nsm/internal/constants"
	"github.com/edgelesssys/nitro-nsm/internal/logging"
	"github.com/edgelesssys/nitro-nsm/nsm"
	"github.com/edgelesssys/nitro-nsm/nsm-agent/internal/health"
	"github.com/edgelesssys/nitro-nsm/nsm-agent/internal/probe"
	"github.com/edgelesssys/nitro-nsm/nsm-agent/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	logLevel      string
	logFile       string
	listenAddr    string
	healthPort    string
	devicePath    string
	minNSMVersion string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nsm-agent",
		Short:        "Serve the Nitro Secure Module of this enclave to the parent instance.",
		Args:         cobra.NoArgs,
		Version:      constants.Version(),
		SilenceUsage: true,
		RunE:         runAgent,
	}

	cmd.Flags().StringVarP(&logLevel, logging.Flag, logging.FlagShorthand, logging.DefaultFlagValue, logging.FlagInfo)
	cmd.Flags().StringVar(&logFile, logging.FileFlag, "", logging.FileFlagInfo)
	cmd.Flags().StringVar(&listenAddr, "listen", constants.AgentDefaultListen, "address to serve the API on, vsock://PORT or tcp://HOST:PORT")
	cmd.Flags().StringVar(&healthPort, "health-port", constants.AgentHealthPort, "TCP port for gRPC health probes")
	cmd.Flags().StringVar(&devicePath, "device", constants.DevicePath(),
		fmt.Sprintf("path of the NSM device, defaults to $%s or %s", constants.DeviceEnv, constants.DefaultDevicePath))
	cmd.Flags().StringVar(&minNSMVersion, "min-nsm-version", "", "refuse to start if the NSM reports an older version, e.g. v1.0.0")

	return cmd
}

func runAgent(cmd *cobra.Command, _ []string) error {
	log := logging.NewFileLogger(logLevel, os.Stderr, logFile)
	log.Info("NSM agent", "version", constants.Version(), "device", devicePath)

	if err := run(cmd.Context(), nsm.New(defaultDriver(devicePath)), log); err != nil {
		log.Error(err.Error())
		return err
	}
	return nil
}

func run(ctx context.Context, client *nsm.Client, log *slog.Logger) error {
	apiListener, err := server.Listen(listenAddr)
	if err != nil {
		return err
	}
	healthListener, err := net.Listen("tcp", net.JoinHostPort("", healthPort))
	if err != nil {
		apiListener.Close()
		return fmt.Errorf("listening on health port %q: %w", healthPort, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	healthServer := health.New(log.With("component", "health"))
	apiServer := server.New(client, reg, log.With("component", "api"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthServer.Serve(ctx, healthListener)
	})
	g.Go(func() error {
		if _, err := probe.New(client, log).Probe(ctx, minNSMVersion); err != nil {
			apiListener.Close()
			return err
		}
		healthServer.SetServing()
		return apiServer.Serve(ctx, apiListener)
	})
	return g.Wait()
}
