package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Posts a sample sync failure report to the configured Slack webhook.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr, debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Notify.SlackWebhookURL == "" {
		logger.Error("notify.slack_webhook_url is not set")
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n := notifier.NewSlackNotifier(cfg.Notify.SlackWebhookURL, httpClient, logger)

	if err := notifier.SendTestMessage(context.Background(), n); err != nil {
		logger.Error("test notification failed", "error", err)
		os.Exit(1)
	}
	logger.Info("test notification sent successfully")
	return nil
}
