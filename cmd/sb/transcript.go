package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/journal"
	"github.com/zulandar/switchboard/internal/models"
)

func newTranscriptCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print the stored messages of a session",
		Long:  "Reads a session and its messages from the journal and prints them in order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscript(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runTranscript(cmd *cobra.Command, configPath, sessionID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	sess, err := journal.New(gormDB, zerolog.Nop()).Transcript(sessionID)
	if err != nil {
		return err
	}
	printTranscript(cmd.OutOrStdout(), sess)
	return nil
}

func printTranscript(w io.Writer, sess *models.Session) {
	fmt.Fprintf(w, "Session %s (%s)\n", sess.ID, sess.Status)
	fmt.Fprintf(w, "Customer: %s\n", sess.CustomerName())
	if sess.AssignedAgent != "" {
		fmt.Fprintf(w, "Agent:    %s\n", sess.AssignedAgent)
	}
	fmt.Fprintf(w, "Started:  %s\n", sess.CreatedAt.Format(time.RFC3339))
	if sess.ClosedAt != nil {
		fmt.Fprintf(w, "Closed:   %s\n", sess.ClosedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	if len(sess.Messages) == 0 {
		fmt.Fprintln(w, "(no messages)")
		return
	}
	for _, m := range sess.Messages {
		fmt.Fprintf(w, "[%s] %-8s %s\n", m.Timestamp.Format("15:04:05"), m.Sender, m.Content)
	}
}
