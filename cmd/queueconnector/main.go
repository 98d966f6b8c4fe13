// Command queueconnector moves messages from a peek-lock queue into a
// downstream sink with at-least-once delivery.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("queueconnector failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		pretty     bool
	)

	rootCmd := &cobra.Command{
		Use:           "queueconnector",
		Short:         "Peek-lock queue connector",
		Long:          "queueconnector receives messages under a lock, submits them downstream and deletes them only once submitted.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("QUEUECONNECTOR_CONFIG"), "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human-readable console logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the connector until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := prepare(configPath, os.Environ(), pretty, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return app.run(cmd.Context())
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := prepare(configPath, os.Environ(), pretty, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: transport=%s queue=%s sink=%s\n",
				app.source.Transport, app.source.QueueName, app.sink.Type)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, validateCmd)
	return rootCmd
}
