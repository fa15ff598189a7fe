package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruel/typeimage/internal/autobackup"
)

func (c *cli) autobackupCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "autobackup", Short: "Configure the auto-backup"}

	var file string
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Enable the auto-backup and write it once",
		Long: "Enable the auto-backup and write it once.\n\n" +
			"On mobile the backup overwrites typeimage-backup.json in the documents\n" +
			"directory. On desktop --file is required; the grant lasts for the process\n" +
			"only, so use \"serve --backup-file\" to keep it.",
		Args: cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			opts := a.setupOptions(file, autobackup.NewPrompter())
			if err := autobackup.Setup(ctx, a.sched, opts); err != nil {
				return err
			}
			d := a.sched.Destination()
			if d == nil {
				return errors.New("auto-backup disabled during setup")
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "auto-backup enabled: %s\n", d.Name())
			return err
		}),
	}
	setup.Flags().StringVar(&file, "file", "", "Backup file (desktop)")

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Disable the auto-backup",
		Args:  cobra.NoArgs,
		RunE: c.run(func(_ *cobra.Command, _ []string, a *app) error {
			return a.sched.Disable()
		}),
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Update the auto-backup file now",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			err := a.sched.Flush(cmd.Context())
			if errors.Is(err, autobackup.ErrUnsupported) && a.cfg.ResolvedPlatform() == autobackup.PlatformDesktop {
				return fmt.Errorf("%w; use \"backup export\" or \"serve --backup-file\"", err)
			}
			return err
		}),
	}

	var limit int
	var show string
	history := &cobra.Command{
		Use:   "history",
		Short: "List or print recorded auto-backup snapshots",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			if !a.cfg.AutoBackup.History {
				return errors.New("auto_backup.history is not enabled")
			}
			d, err := autobackup.NewOverwriteDestination(a.cfg.AutoBackup.DocumentsDir, a.cfg.AutoBackup.DownloadsDir, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if show != "" {
				data, err := d.Snapshot(ctx, show)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			commits, err := d.History(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, cm := range commits {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", cm.Hash[:12], cm.Date.Format(time.DateTime), cm.Message)
			}
			return tw.Flush()
		}),
	}
	history.Flags().IntVarP(&limit, "limit", "n", 20, "Number of snapshots")
	history.Flags().StringVar(&show, "show", "", "Print the backup at this commit (HEAD for the latest)")

	cmd.AddCommand(setup, disable, run, history)
	return cmd
}
