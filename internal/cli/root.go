// Package cli implements domainctl, the operator command line for the
// lifecycle engine. Commands open the same database the server uses.
package cli

import (
	"fmt"
	"io"

	"domain-lifecycle/internal/app"
	"domain-lifecycle/internal/config"
	"domain-lifecycle/internal/services"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Actor      string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for domainctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "domainctl",
		Short: "Operate the domain lifecycle engine",
		Long:  "Inspect domain records, reconcile them with registrars and run lifecycle operations from the shell.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/config.yaml", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "name recorded as the actor of mutating commands")

	cmd.AddCommand(
		newListCommand(opts),
		newShowCommand(opts),
		newRegisterCommand(opts),
		newSyncCommand(opts),
		newSweepCommand(opts),
		newAdvanceCommand(opts),
		newRenewCommand(opts),
		newOverrideExpiryCommand(opts),
		newStatusCommand(opts),
		newAuthCodeCommand(opts),
		newTransferOutCommand(opts),
		newLogsCommand(opts),
		newVerifyLogCommand(opts),
	)

	return cmd
}

func openApp(opts *RootOptions, logs io.Writer) (*app.App, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logs)
}

// withApp opens the service graph for the duration of fn
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(a *app.App) error) error {
	a, err := openApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if opts.Actor != "" {
		ctx = services.WithActor(ctx, opts.Actor)
	}
	cmd.SetContext(ctx)
	return fn(a)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
