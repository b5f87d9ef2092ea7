package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sardine-ai/fieldview/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fieldview",
		Short:         "Choose, order and share which fields a list view shows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root.PersistentFlags())
	root.AddCommand(
		newServeCommand(),
		newPanelCommand(),
		newShowCommand(),
		newResetCommand(),
		newHistoryCommand(),
	)
	return root
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("fieldview failed")
		stop()
		os.Exit(1)
	}
}
