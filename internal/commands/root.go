package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/app"
	"github.com/dotcommander/recall/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "recall",
		Short:         "Spaced-repetition recall session engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --db-path into app-level resolver.
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}

			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.PersistentFlags().String("request-id", "", "Idempotency key for mutating operations (default: $RECALL_REQUEST_ID)")
	root.Flags().BoolP("version", "v", false, "version for recall")

	root.AddCommand(NewStartCmd())
	root.AddCommand(NewResumeCmd())
	root.AddCommand(NewPauseCmd())
	root.AddCommand(NewAbandonCmd())
	root.AddCommand(NewListCmd())
	root.AddCommand(NewStatsCmd())
	root.AddCommand(NewSessionsCmd())
	root.AddCommand(NewReplayCmd())
	root.AddCommand(NewExportCmd())
	root.AddCommand(NewSeedCmd())
	root.AddCommand(NewDBCmd())
	root.AddCommand(NewUpgradeCmd())

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}
