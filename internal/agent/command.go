package agent

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sit-kite/kite-server/internal/runtime"
	"github.com/sit-kite/kite-server/internal/util"
)

// NewCommand builds the `kite agent` subcommand: a worker process that
// dials the host and answers delegated requests.
func NewCommand(globals *runtime.Options) *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run a worker agent that connects to the kite host",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Logger = globals.Component("agent")

			a, err := New(opts)
			if err != nil {
				return err
			}

			ctx, cancel := util.WithSignalContext(cmd.Context())
			defer cancel()

			err = a.Run(ctx)
			if ctx.Err() != nil {
				opts.Logger.Info("agent shutting down")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.HostAddr, "host", "127.0.0.1:8910", "host bridge address to connect to")
	cmd.Flags().StringVar(&opts.Name, "name", "", "agent name reported to the host")
	cmd.Flags().DurationVar(&opts.DialTimeout, "dial-timeout", 5*time.Second, "connection attempt timeout")
	cmd.Flags().DurationVar(&opts.ReconnectMin, "reconnect-min", 2*time.Second, "minimum reconnect backoff")
	cmd.Flags().DurationVar(&opts.ReconnectMax, "reconnect-max", time.Minute, "maximum reconnect backoff")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
