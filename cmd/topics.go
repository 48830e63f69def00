package cmd

import (
	"context"
	"fmt"

	"github.com/alejoacosta74/cardbatch/internal/kafka"
	"github.com/alejoacosta74/cardbatch/internal/routing"
	"github.com/spf13/cobra"
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Create the routed Kafka topics that do not exist yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go handleSignals(ctx, cancel)

		if err := kafka.WaitForCluster(ctx, cfg.Kafka.Brokers, cfg.Kafka.ProbeTimeout, cfg.Kafka.ProbeRetries); err != nil {
			return err
		}
		router := routing.NewRouter(cfg.Routes())
		if err := ensureRoutedTopics(router); err != nil {
			return err
		}
		for _, topic := range router.Topics() {
			fmt.Fprintln(cmd.OutOrStdout(), topic)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)

	topicsCmd.Flags().Int32("partitions", 3, "partitions per created topic")
	topicsCmd.Flags().Int16("replication-factor", 1, "replication factor per created topic")
	bindFlags(topicsCmd, map[string]string{
		"kafka.topic_partitions":   "partitions",
		"kafka.replication_factor": "replication-factor",
	})
}
