package cli

import (
	"fmt"
	"strings"
	"time"

	"domain-lifecycle/internal/app"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/services"

	"github.com/spf13/cobra"
)

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, w: cmd.OutOrStdout()}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List domain records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				var filter *models.Status
				if status != "" {
					s := models.Status(strings.ToLower(status))
					filter = &s
				}
				recs, err := a.Lifecycle.ListDomains(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return opts.printer(cmd).domains(recs)
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "only list domains in this status")
	return cmd
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <domain-id>",
		Short: "Show one domain record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.Lifecycle.GetDomain(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.printer(cmd).domain(rec)
			})
		},
	}
}

func newRegisterCommand(opts *RootOptions) *cobra.Command {
	in := services.RegisterInput{}
	var expiry string
	cmd := &cobra.Command{
		Use:   "register <domain>",
		Short: "Record a completed registration or an incoming transfer",
		Example: `  domainctl register example.com --owner acct-42
  domainctl register example.co.uk --owner acct-42 --transfer-in --expiry 2027-02-14 --ns ns1.acme.net,ns2.acme.net`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.DomainName = args[0]
			if expiry != "" {
				parsed, err := time.Parse("2006-01-02", expiry)
				if err != nil {
					return fmt.Errorf("invalid --expiry %q: want YYYY-MM-DD", expiry)
				}
				in.ExpiryDate = &parsed
			}
			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.Lifecycle.RegisterDomain(cmd.Context(), in)
				if err != nil {
					return err
				}
				return opts.printer(cmd).domain(rec)
			})
		},
	}
	cmd.Flags().StringVar(&in.Owner, "owner", "", "account reference of the registrant")
	cmd.Flags().StringVar(&in.RegistrarName, "registrar", "", "registrar name (defaults to lifecycle.default_registrar)")
	cmd.Flags().StringSliceVar(&in.Nameservers, "ns", nil, "nameservers")
	cmd.Flags().BoolVar(&in.AutoRenew, "auto-renew", false, "mark the domain for automatic renewal")
	cmd.Flags().BoolVar(&in.TransferIn, "transfer-in", false, "the domain is arriving by transfer")
	cmd.Flags().StringVar(&expiry, "expiry", "", "current expiry date of an incoming transfer (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <domain-id>",
		Short: "Reconcile one domain with its registrar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				res, err := a.Sync.Synchronize(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.printer(cmd).syncResult(res)
			})
		},
	}
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile every non-cancelled domain with its registrar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				report, err := a.Sweep.SyncAll(cmd.Context())
				if report != nil {
					if perr := opts.printer(cmd).report("sync sweep", report); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func newAdvanceCommand(opts *RootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Apply time-driven lifecycle transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse("2006-01-02", at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: want YYYY-MM-DD", at)
				}
				now = parsed
			}
			return withApp(cmd, opts, func(a *app.App) error {
				report, err := a.Sweep.AdvanceLifecycle(cmd.Context(), now)
				if report != nil {
					if perr := opts.printer(cmd).report("lifecycle advancement", report); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate windows as of this date (YYYY-MM-DD)")
	return cmd
}

func newRenewCommand(opts *RootOptions) *cobra.Command {
	var years int
	cmd := &cobra.Command{
		Use:   "renew <domain-id>",
		Short: "Renew a domain at its registrar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.Lifecycle.RenewDomain(cmd.Context(), args[0], years)
				if err != nil {
					return err
				}
				return opts.printer(cmd).domain(rec)
			})
		},
	}
	cmd.Flags().IntVarP(&years, "years", "y", 1, "renewal period in years")
	return cmd
}

func newOverrideExpiryCommand(opts *RootOptions) *cobra.Command {
	var date, reason string
	cmd := &cobra.Command{
		Use:   "override-expiry <domain-id>",
		Short: "Set the expiry date locally without asking the registrar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := time.Parse("2006-01-02", date)
			if err != nil {
				return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
			}
			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.Lifecycle.OverrideExpiryDate(cmd.Context(), args[0], expiry, reason)
				if err != nil {
					return err
				}
				return opts.printer(cmd).domain(rec)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "new expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the registrar's date is being overridden")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	var reason string
	var force bool
	cmd := &cobra.Command{
		Use:   "status <domain-id> <status>",
		Short: "Change a domain's status administratively",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.Status(strings.ToLower(args[1]))
			return withApp(cmd, opts, func(a *app.App) error {
				var (
					rec *models.DomainRecord
					err error
				)
				if force {
					rec, err = a.Lifecycle.ForceDomainStatus(cmd.Context(), args[0], status, reason)
				} else {
					rec, err = a.Lifecycle.UpdateDomainStatus(cmd.Context(), args[0], status, reason)
				}
				if err != nil {
					return err
				}
				return opts.printer(cmd).domain(rec)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "recorded with the change; required with --force")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the lifecycle table (never leaves cancelled)")
	return cmd
}

func newAuthCodeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-code <domain-id>",
		Short: "Request a transfer authorization code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				code, err := a.Lifecycle.GenerateAuthCode(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return opts.printer(cmd).json(map[string]string{"auth_code": code})
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)
				return nil
			})
		},
	}
}

func newTransferOutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer-out <domain-id>",
		Short: "Start an outgoing transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.Lifecycle.InitiateTransferOut(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.printer(cmd).domain(rec)
			})
		},
	}
}

func newLogsCommand(opts *RootOptions) *cobra.Command {
	var domainID string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the sync log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				entries, err := a.Lifecycle.ListSyncLogs(cmd.Context(), domainID)
				if err != nil {
					return err
				}
				return opts.printer(cmd).logs(entries)
			})
		},
	}
	cmd.Flags().StringVarP(&domainID, "domain", "d", "", "only entries for this domain id")
	return cmd
}

func newVerifyLogCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-log",
		Short: "Check the sync log hash chain for edited or removed entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				report, err := a.Lifecycle.VerifySyncLog(cmd.Context())
				if err != nil {
					return err
				}
				if err := opts.printer(cmd).audit(report); err != nil {
					return err
				}
				if !report.Intact {
					return fmt.Errorf("sync log failed verification")
				}
				return nil
			})
		},
	}
}
