// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

// Package probe checks that the NSM is reachable before the nsm-agent starts serving.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/edgelesssys/nitro-nsm/nsm"
	"golang.org/x/mod/semver"
)

// ErrVersionTooOld is returned if the NSM is older than the required minimum version.
var ErrVersionTooOld = errors.New("NSM version too old")

// Prober describes the NSM, retrying while the device is not ready.
type Prober struct {
	client    *nsm.Client
	log       *slog.Logger
	retryOpts []retry.Option
}

// New returns a Prober for the device behind client.
func New(client *nsm.Client, log *slog.Logger) *Prober {
	return &Prober{
		client:    client,
		log:       log,
		retryOpts: []retry.Option{retry.Delay(2 * time.Second), retry.Attempts(10)},
	}
}

// Probe opens the device, describes it and checks that its version is at least minVersion.
// An empty minVersion skips the check. minVersion uses semantic version syntax, e.g. "v1.0.0".
func (p *Prober) Probe(ctx context.Context, minVersion string) (nsm.Description, error) {
	if minVersion != "" && !semver.IsValid(minVersion) {
		return nsm.Description{}, fmt.Errorf("invalid minimum NSM version %q", minVersion)
	}

	var desc nsm.Description
	opts := append([]retry.Option{
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.log.Warn("NSM not ready, retrying", "attempt", n+1, "error", err)
		}),
	}, p.retryOpts...)
	if err := retry.New(opts...).Do(func() error {
		var err error
		desc, err = p.describe()
		return err
	}); err != nil {
		return nsm.Description{}, fmt.Errorf("probing NSM: %w", err)
	}

	version := Version(desc)
	p.log.Info("NSM ready", "version", version, "module_id", desc.ModuleID, "max_pcrs", desc.MaxPCRs, "digest", desc.Digest)
	if minVersion != "" && semver.Compare(version, minVersion) < 0 {
		return nsm.Description{}, fmt.Errorf("%w: %s is below the required %s", ErrVersionTooOld, version, minVersion)
	}
	return desc, nil
}

func (p *Prober) describe() (nsm.Description, error) {
	sess, err := p.client.OpenSession()
	if err != nil {
		return nsm.Description{}, err
	}
	desc, err := sess.GetDescription()
	return desc, errors.Join(err, sess.Close())
}

// Version returns the module version of desc in semantic version syntax.
func Version(desc nsm.Description) string {
	return fmt.Sprintf("v%d.%d.%d", desc.VersionMajor, desc.VersionMinor, desc.VersionPatch)
}
