package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/metrics"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/reporting"
)

func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only reporting server",
		Long: `Serve the playbook over HTTP: summary, sections, item lookup,
retrieval, and Prometheus metrics. The server never mutates the
playbook.`,
		Example: `  acectl serve
  acectl serve --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.close()

			if addr == "" {
				addr = eng.cfg.Reporting.Address
			}

			collector := metrics.NewCollector()
			server := reporting.NewServer(eng.playbook,
				reporting.WithRetriever(playbook.NewRetriever(eng.playbook, eng.embedder)),
				reporting.WithCollector(collector),
			)

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()
			fmt.Printf("reporting server listening on %s\n", addr)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
			}

			ctx, cancel := context.WithTimeout(context.Background(), eng.cfg.Reporting.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the configured one)")
	return cmd
}
