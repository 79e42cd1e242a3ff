package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/infra/config"
	"github.com/datallboy/gofichier/internal/infra/logger"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved settings",
	}

	cmd.AddCommand(newSettingsShowCmd(opts), newSettingsSetCmd(opts))
	return cmd
}

func newSettingsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the settings in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			st := openStore(cfg, logger.Discard())
			defer st.Close()

			s, err := st.LoadSettings(cmd.Context(), cfg.DefaultSettings())
			if err != nil {
				return err
			}
			return printSettings(cmd, s)
		},
	}
}

func newSettingsSetCmd(opts *rootOptions) *cobra.Command {
	var next domain.Settings

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change individual settings and save them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			st := openStore(cfg, logger.Discard())
			defer st.Close()

			s, err := st.LoadSettings(cmd.Context(), cfg.DefaultSettings())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("dir") {
				s.DownloadDirectory = next.DownloadDirectory
			}
			if flags.Changed("theme") {
				s.ThemeIndex = next.ThemeIndex
			}
			if flags.Changed("timeout") {
				s.TimeoutSeconds = next.TimeoutSeconds
			}
			if flags.Changed("proxy") {
				s.Proxy = next.Proxy
			}

			s = s.Normalize()
			if err := st.SaveSettings(cmd.Context(), s); err != nil {
				return fmt.Errorf("could not save settings: %w", err)
			}
			return printSettings(cmd, s)
		},
	}

	cmd.Flags().StringVar(&next.DownloadDirectory, "dir", "", "download directory")
	cmd.Flags().IntVar(&next.ThemeIndex, "theme", domain.ThemeLight, "theme index (0 light, 1 dark)")
	cmd.Flags().IntVar(&next.TimeoutSeconds, "timeout", domain.DefaultTimeoutSeconds, "network timeout in seconds")
	cmd.Flags().StringVar(&next.Proxy, "proxy", "", "proxy URL, empty for the environment's")

	return cmd
}

func printSettings(cmd *cobra.Command, s domain.Settings) error {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
