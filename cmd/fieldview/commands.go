package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/client"
	"github.com/sardine-ai/fieldview/config"
	"github.com/sardine-ai/fieldview/host/csvhost"
	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/server"
	"github.com/sardine-ai/fieldview/source"
	"github.com/sardine-ai/fieldview/store"
	"github.com/sardine-ai/fieldview/tui"
	"github.com/sardine-ai/fieldview/view"
	"github.com/sardine-ai/fieldview/widget"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func setup(cmd *cobra.Command) (config.Config, *store.Store, source.Repository, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return cfg, nil, nil, err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return cfg, nil, nil, err
	}
	st, repo, err := cfg.OpenStore()
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, st, repo, nil
}

// openHost returns the CSV table at path, or without a path a list built from
// the persisted configuration so it can be edited on its own.
func openHost(ctx context.Context, st *store.Store, path string) (view.Container, *csvhost.Table, error) {
	if path != "" {
		t, err := csvhost.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil
	}
	persisted, err := st.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]view.Node, len(persisted))
	for i, d := range persisted {
		nodes[i] = view.NewElement(d.Key, d.Label)
	}
	return view.NewList(nodes...), nil, nil
}

func newWidget(cfg config.Config, st *store.Store, c view.Container, n widget.Notifier) (*widget.Widget, error) {
	return widget.New(widget.Options{
		Container:      c,
		Store:          st,
		MaxEnabled:     cfg.MaxEnabled,
		DefaultEnabled: cfg.DefaultEnabled,
		SyncDebounce:   cfg.SyncDebounce,
		SaveDebounce:   cfg.SaveDebounce,
		Notifier:       n,
	})
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repository to other hosts over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, repo, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			srv := server.NewServer(ctx, repo, cfg.Server.ProbeInterval)
			srv.AuthKey = cfg.Server.APIKey

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(cfg.Server.Addr)
			}()
			select {
			case <-ctx.Done():
				logrus.Info("shutting down")
				return srv.Shutdown()
			case err := <-errCh:
				srv.Stop()
				return err
			}
		},
	}
	config.AddServerFlags(cmd.Flags())
	return cmd
}

func newPanelCommand() *cobra.Command {
	var csvPath, logFile string
	var follow, printCSV bool
	var remoteInterval time.Duration
	cmd := &cobra.Command{
		Use:   "panel",
		Short: "Edit which fields are shown, and in which order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, repo, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			// The terminal belongs to the panel while it runs.
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return errors.Wrapf(err, "opening %s", logFile)
				}
				defer f.Close()
				logOut = f
			}
			logrus.SetOutput(logOut)
			defer logrus.SetOutput(os.Stderr)

			container, csvTable, err := openHost(ctx, st, csvPath)
			if err != nil {
				return err
			}
			notices := tui.NewNotices()
			w, err := newWidget(cfg, st, container, notices)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Init(ctx); err != nil {
				logrus.WithError(err).Warn("starting with an unsaved configuration")
			}

			if follow && csvTable != nil {
				watcher, err := csvhost.NewWatcher(csvTable, 0)
				if err != nil {
					return err
				}
				if err := watcher.Start(ctx); err != nil {
					return err
				}
				defer watcher.Stop()
				w.Start(ctx)
			}

			if remoteInterval > 0 {
				follower := client.NewClient(ctx, repo, st.Entry(), w, remoteInterval)
				defer follower.Close()
			}

			model := tui.New(ctx, w.OpenPanel(), notices)
			if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
				return errors.Wrap(err, "running panel")
			}
			if printCSV && csvTable != nil {
				return csvTable.Render(os.Stdout)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file whose columns are the fields")
	cmd.Flags().BoolVar(&follow, "watch", false, "follow header changes of the CSV file")
	cmd.Flags().BoolVar(&printCSV, "print", false, "print the CSV with the chosen columns on exit")
	cmd.Flags().DurationVar(&remoteInterval, "follow-remote", 0, "poll the repository for changes saved by other hosts, 0 disables")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs here while the panel is open")
	return cmd
}

func newShowCommand() *cobra.Command {
	var csvPath, format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration, or a CSV file with the chosen columns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, _, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if csvPath == "" {
				persisted, err := st.Load(ctx)
				if err != nil {
					return err
				}
				return printConfiguration(out, persisted, format)
			}

			t, err := csvhost.Open(csvPath)
			if err != nil {
				return err
			}
			w, err := newWidget(cfg, st, t, nil)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Init(ctx); err != nil {
				logrus.WithError(err).Warn("configuration not saved")
			}
			if format == "csv" {
				return t.Render(out)
			}
			return printConfiguration(out, w.Configuration(), format)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file whose columns are the fields")
	cmd.Flags().StringVar(&format, "format", "table", "table, yaml, or csv (with --csv)")
	return cmd
}

func printConfiguration(out io.Writer, cfg model.Configuration, format string) error {
	switch format {
	case "yaml":
		data, err := store.Encode(cfg)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "table":
		rows := make([][]string, len(cfg))
		for i, d := range cfg {
			shown := "no"
			if d.Enabled {
				shown = "yes"
			}
			rows[i] = []string{strconv.Itoa(i + 1), d.Key, d.Label, shown}
		}
		t := table.New().
			Headers("#", "KEY", "LABEL", "SHOWN").
			Rows(rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		_, err := fmt.Fprintln(out, t.Render())
		return err
	}
	return errors.Newf("unknown format %q", format)
}

func newResetCommand() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the saved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, _, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var container view.Container
			if csvPath != "" {
				if container, _, err = openHost(ctx, st, csvPath); err != nil {
					return err
				}
			}
			w, err := newWidget(cfg, st, container, nil)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Reset(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %s (%d fields)\n", st.Entry(), len(w.Configuration()))
			return err
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "re-derive the fields from this CSV file")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the saved revisions of the configuration (git repository only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, st, repo, err := setup(cmd)
			if err != nil {
				return err
			}
			gitRepo, ok := repo.(*source.GitRepository)
			if !ok {
				return errors.Newf("history needs a git repository, not %s", repo.GetType())
			}
			revisions, err := gitRepo.History(cmd.Context(), st.Entry())
			if err != nil {
				return err
			}
			rows := make([][]string, len(revisions))
			for i, r := range revisions {
				hash := r.Hash
				if len(hash) > 7 {
					hash = hash[:7]
				}
				rows[i] = []string{hash, r.When.Format("2006-01-02 15:04"), r.Message}
			}
			t := table.New().Headers("COMMIT", "DATE", "MESSAGE").Rows(rows...)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}
