package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"lumen/internal/archive"
	"lumen/internal/remote"
	"lumen/internal/tui"
)

var (
	backupRefresh       bool
	backupTag           string
	backupApplySettings bool
	backupOutputDir     string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the history to a WebDAV store and restore it",
}

var backupCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the WebDAV store is reachable with the configured credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRemoteClient()
		if err != nil {
			return err
		}
		if err := client.Check(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success("store reachable: "+cfg.Remote.URL))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups in the store, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRemoteClient()
		if err != nil {
			return err
		}
		backups, err := client.List(cmd.Context(), backupRefresh)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no backups yet")
			return nil
		}

		rows := make([][]string, 0, len(backups))
		for _, b := range backups {
			created := "-"
			if !b.Created.IsZero() {
				created = b.Created.Local().Format("2006-01-02 15:04:05")
			}
			rows = append(rows, []string{b.Name, created, b.Tag, tui.FormatBytes(b.Size)})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderTable([]string{"Name", "Created", "Tag", "Size"}, rows))
		return nil
	},
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload the whole history as one backup archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRemoteClient()
		if err != nil {
			return err
		}
		store, err := openHistory()
		if err != nil {
			return err
		}
		records, err := store.List()
		if err != nil {
			return err
		}
		settings, err := cfg.Snapshot()
		if err != nil {
			return err
		}

		progress := make(chan float64, 16)
		program := tea.NewProgram(tui.NewTransferModel(fmt.Sprintf("uploading %d record(s)", len(records)), progress), tea.WithOutput(cmd.ErrOrStderr()))
		uiDone := make(chan struct{})
		go func() {
			_, _ = program.Run()
			close(uiDone)
		}()

		name, err := client.Create(cmd.Context(), records, archive.Options{Tag: backupTag, Settings: settings}, func(f float64) {
			select {
			case progress <- f:
			default:
			}
		})
		close(progress)
		<-uiDone
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("uploaded %s (%d records)", name, len(records))))
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Restore a backup into the local history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRemoteClient()
		if err != nil {
			return err
		}
		store, err := openHistory()
		if err != nil {
			return err
		}

		res, err := client.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, r := range res.Records {
			if err := store.Save(r); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, tui.Success(fmt.Sprintf("restored %d record(s) from %s", len(res.Records), args[0])))
		if len(res.Skipped) > 0 {
			fmt.Fprintln(out, tui.Warn(fmt.Sprintf("%d item(s) skipped: content missing from the archive", len(res.Skipped))))
		}

		if backupApplySettings {
			if len(res.Settings) == 0 {
				fmt.Fprintln(out, tui.Warn("archive carries no settings"))
				return nil
			}
			if err := cfg.ApplySnapshot(res.Settings); err != nil {
				return err
			}
			if err := cfg.SaveProcessing(configPath); err != nil {
				return err
			}
			fmt.Fprintf(out, "settings applied to %s\n", configPath)
		}
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete backups from the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRemoteClient()
		if err != nil {
			return err
		}
		err = client.DeleteBatch(cmd.Context(), args)
		var batchErr *remote.BatchError
		if errors.As(err, &batchErr) {
			fmt.Fprintln(cmd.OutOrStdout(), tui.Warn(fmt.Sprintf("%d of %d deletes failed", batchErr.Failed, batchErr.Total)))
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("deleted %d backup(s)", len(args))))
		return nil
	},
}

var backupDownloadCmd = &cobra.Command{
	Use:   "download <name>...",
	Short: "Download backup archives to a local folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRemoteClient()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(backupOutputDir, 0o755); err != nil {
			return err
		}
		return client.DownloadBatch(cmd.Context(), args, func(name string, data []byte) error {
			dest := filepath.Join(backupOutputDir, filepath.Base(name))
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", dest, tui.FormatBytes(int64(len(data))))
			return nil
		})
	},
}

func init() {
	backupListCmd.Flags().BoolVar(&backupRefresh, "refresh", false, "bypass the listing cache")
	backupCreateCmd.Flags().StringVarP(&backupTag, "tag", "t", "", "label embedded in the archive name")
	backupRestoreCmd.Flags().BoolVar(&backupApplySettings, "apply-settings", false, "merge the archived processing settings into the config file")
	backupDownloadCmd.Flags().StringVarP(&backupOutputDir, "output", "o", ".", "destination folder")

	backupCmd.AddCommand(backupCheckCmd, backupListCmd, backupCreateCmd, backupRestoreCmd, backupDeleteCmd, backupDownloadCmd)
	rootCmd.AddCommand(backupCmd)
}

