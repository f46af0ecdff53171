package cmd

import (
	"os/signal"
	"syscall"

	"github.com/kisun-bit/undelpart/server"
	"github.com/spf13/cobra"
)

func DefineServeCommand() *cobra.Command {
	var (
		addr      string
		pprof     bool
		accessLog bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the partition operations as an HTTP JSON API under /api/v1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			options := []server.Option{
				server.WithAddr(addr),
				server.WithPProf(pprof),
				server.WithServerLogger(log),
			}
			if accessLog {
				options = append(options, server.WithAccessLog(cmd.ErrOrStderr()))
			}
			return server.New(session, options...).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().BoolVar(&pprof, "pprof", false, "register pprof routes under /api/v1/pprof")
	cmd.Flags().BoolVar(&accessLog, "access-log", false, "log every request to stderr")
	return cmd
}
