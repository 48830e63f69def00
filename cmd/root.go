/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/alejoacosta74/cardbatch/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string

	v   = config.NewViper()
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cardbatch",
	Short: "Batch credit card registrations into Kafka",
	Long: `cardbatch accepts credit card registrations, buffers them per card brand
and delivers them to one Kafka topic per brand in bounded batches.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("brokers", "localhost:9092", "comma separated list of Kafka brokers")
	pf.String("kafka-driver", "sarama", "Kafka client: sarama, kafka-go or franz")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")

	bindFlags(rootCmd, map[string]string{
		"kafka.brokers": "brokers",
		"kafka.driver":  "kafka-driver",
		"log.level":     "log-level",
		"log.format":    "log-format",
	})
}

// bindFlags binds viper keys to persistent or local flags of cmd.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	loaded, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	cfg = loaded
	cfg.ConfigureLogger()

	if used := v.ConfigFileUsed(); used != "" {
		logrus.WithField("file", used).Debug("Using config file")
	}
	return nil
}
