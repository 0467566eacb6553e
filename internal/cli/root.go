// Package cli is the meshchat command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rudransh-shrivastava/meshchat/internal/config"
	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	nameFlag   string
	portFlag   int

	cfg config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "meshchat",
	Short:         "chat with nearby devices without any infrastructure",
	Long:          `meshchat discovers peers on the local network, negotiates which side hosts the link and exchanges newline-delimited text messages over TCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, &loaded); err != nil {
			return err
		}
		cfg = loaded

		log, err = logger.NewLoggerWithLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		log.SetOutput(cmd.ErrOrStderr())
		return nil
	},
}

func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		c.Name = nameFlag
	}
	if flags.Changed("port") {
		c.Port = portFlag
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	return c.Validate()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&nameFlag, "name", "", "display name announced to peers")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "messaging port")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(sendCmd)
}
