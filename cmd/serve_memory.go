package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"parley/config"
	"parley/memory"
	"parley/vectorsvc"
)

// DefaultServeAddr matches memory.DefaultServiceURL.
const DefaultServeAddr = "127.0.0.1:5000"

func newServeMemoryCmd() *cobra.Command {
	var addr string
	var ephemeral bool

	cmd := &cobra.Command{
		Use:   "serve-memory",
		Short: "Run the vector memory service",
		Long: `Run the vector memory HTTP service used by the "remote" memory backend.
Documents are embedded with the [memory] embedder and kept in a chromem-go
database under the data directory.

Examples:
  parley serve-memory
  parley serve-memory --addr 0.0.0.0:5000 --ephemeral`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			embed, err := a.embedder()
			if err != nil {
				return fmt.Errorf("failed to set up embeddings: %w", err)
			}

			var db *chromem.DB
			if ephemeral {
				db = chromem.NewDB()
			} else {
				dir := filepath.Join(config.MemoryDir(a.cfg.DataDir()), "service")
				db, err = chromem.NewPersistentDB(dir, false)
				if err != nil {
					return fmt.Errorf("failed to open vector db: %w", err)
				}
			}

			modelName := a.cfg.Memory.EmbeddingModel
			if modelName == "" {
				modelName = memory.DefaultEmbeddingModel
			}
			svc := vectorsvc.New(db, embed, modelName, a.log.Zerolog())

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			fmt.Fprintf(cmd.OutOrStdout(), "%s listening on http://%s\n", titleStyle.Render("vector memory service"), addr)
			return vectorsvc.ListenAndServe(cmd.Context(), addr, svc.Handler(reg), a.log.Component("vectorsvc"))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", DefaultServeAddr, "listen address")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep documents in memory only")
	return cmd
}
