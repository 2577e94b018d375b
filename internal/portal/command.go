package portal

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sit-kite/kite-server/internal/config"
	"github.com/sit-kite/kite-server/internal/runtime"
)

// NewCommand builds the `kite login` subcommand: a one-shot credential
// check against the campus SSO, mostly used to verify portal connectivity
// and the page extraction patterns from the command line.
func NewCommand(globals *runtime.Options) *cobra.Command {
	var (
		configPath string
		account    string
		password   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the campus SSO once and print the account holder's name",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Portal.BaseURL == "" {
				return errors.New("portal base URL is not configured (set portal.base_url or KITE_SSO_BASE_URL)")
			}
			if password == "" {
				password = os.Getenv("KITE_PASSWORD")
			}
			if password == "" {
				return errors.New("password is required (use --password or KITE_PASSWORD)")
			}

			p, err := New(Options{
				BaseURL:     cfg.Portal.BaseURL,
				OCREndpoint: cfg.Portal.OCREndpoint,
				UserAgent:   cfg.Portal.UserAgent,
				Timeout:     cfg.Portal.Timeout,
				Logger:      globals.Component("portal"),
			})
			if err != nil {
				return err
			}
			defer p.Session().Close()

			ctx := cmd.Context()
			if err := p.TryLogin(ctx, Credential{Account: account, Password: password}); err != nil {
				return err
			}
			name, err := p.PersonName(ctx)
			if err != nil {
				return err
			}
			if name == "" {
				name = account
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	cmd.Flags().StringVar(&account, "account", "", "portal account")
	cmd.Flags().StringVar(&password, "password", "", "portal password (prefer KITE_PASSWORD)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
