// Package cli implements lgtmctl, the operator command line for the LGTM
// image service.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lgtmagic/internal/app"
	"lgtmagic/internal/config"
	"lgtmagic/pkg/logger"
)

// env holds what commands share. Config and services are built lazily so
// offline commands never touch the network.
type env struct {
	logLevel string
	log      *zap.Logger
	cfg      *config.Config
	app      *app.App
}

func (e *env) logger() *zap.Logger {
	if e.log == nil {
		log, err := logger.New(e.logLevel)
		if err != nil {
			log = zap.NewNop()
		}
		e.log = log
	}
	return e.log
}

func (e *env) services(ctx context.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	if e.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		e.cfg = cfg
	}

	a, err := app.New(ctx, e.cfg, e.logger())
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *env) close() {
	if e.app != nil {
		e.app.Close()
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "lgtmctl",
		Short: "Stamp, publish and curate LGTM images",
		Long: `lgtmctl drives the LGTM image pipeline from the command line.

Example usage:
  lgtmctl render cat.jpg cat-lgtm.webp     # Composite locally
  lgtmctl upload cat.jpg                   # Publish to the public gallery
  lgtmctl gallery --limit 10               # Show recent images
  lgtmctl delete lgtm-20240101-xyz.webp    # Prompts for the admin password`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRenderCmd(e),
		newUploadCmd(e),
		newGalleryCmd(e),
		newDeleteCmd(e),
	)
	return root
}

func Execute() error {
	e := &env{}
	defer e.close()
	return newRootCmd(e).Execute()
}
