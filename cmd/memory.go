package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parley/memory"
	"parley/render"
)

// purger is implemented by stores that can drop expired memories.
type purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// healthChecker is implemented by stores backed by the vector service.
type healthChecker interface {
	Health(ctx context.Context) (memory.HealthResponse, error)
}

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage long-term memory",
	}

	var limit int
	searchCmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Show the memories most relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(func(store memory.Store) error {
				return searchMemory(cmd.Context(), cmd.OutOrStdout(), store, strings.Join(args, " "), limit, time.Now())
			})
		},
	}
	searchCmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of memories")
	cmd.AddCommand(searchCmd)

	var namespace string
	var expired bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored memories and tool descriptions",
		Long: `Delete stored memories and tool descriptions. Without flags both
namespaces are emptied.

Examples:
  parley memory clear
  parley memory clear --namespace tools
  parley memory clear --expired`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(func(store memory.Store) error {
				return clearMemory(cmd.Context(), cmd.OutOrStdout(), store, namespace, expired)
			})
		},
	}
	clearCmd.Flags().StringVar(&namespace, "namespace", "", "only clear this namespace (memories or tools)")
	clearCmd.Flags().BoolVar(&expired, "expired", false, "only drop expired memories")
	cmd.AddCommand(clearCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the memory backend and document counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(func(store memory.Store) error {
				return memoryStatus(cmd.Context(), cmd.OutOrStdout(), store)
			})
		},
	})

	return cmd
}

// withMemory opens the configured store for the duration of fn.
func withMemory(fn func(memory.Store) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openMemory()
	if err != nil {
		return fmt.Errorf("failed to open memory: %w", err)
	}
	if store == nil {
		return errors.New("memory is disabled (set [memory] backend in config.toml)")
	}
	defer store.Close()
	return fn(store)
}

func searchMemory(ctx context.Context, out io.Writer, store memory.Store, query string, limit int, now time.Time) error {
	mems, err := store.RelevantMemories(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("failed to search memory: %w", err)
	}
	if len(mems) == 0 {
		fmt.Fprintf(out, "No memories for %q.\n", query)
		return nil
	}
	for _, m := range mems {
		tags := []string{m.Importance.String(), m.CreatedAt.Local().Format(timeLayout)}
		if m.Expired(now) {
			tags = append(tags, "expired")
		} else if m.Volatile && m.ExpiresAt != nil {
			tags = append(tags, "until "+m.ExpiresAt.Local().Format(timeLayout))
		}
		fmt.Fprintf(out, "- %s  %s\n", render.Preview(m.Text), dimStyle.Render(strings.Join(tags, " · ")))
	}
	return nil
}

func clearMemory(ctx context.Context, out io.Writer, store memory.Store, namespace string, expired bool) error {
	if expired {
		p, ok := store.(purger)
		if !ok {
			return errors.New("this memory backend drops expired memories at query time only")
		}
		n, err := p.PurgeExpired(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("failed to purge memories: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Dropped %d expired memories", n)))
		return nil
	}

	switch namespace {
	case "", memory.NamespaceMemories, memory.NamespaceTools:
	default:
		return fmt.Errorf("unknown namespace %q (memories or tools)", namespace)
	}
	if err := store.Clear(ctx, namespace); err != nil {
		return fmt.Errorf("failed to clear memory: %w", err)
	}
	what := namespace
	if what == "" {
		what = "memories and tools"
	}
	fmt.Fprintln(out, successStyle.Render("Cleared "+what))
	return nil
}

func memoryStatus(ctx context.Context, out io.Writer, store memory.Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read memory stats: %w", err)
	}
	fmt.Fprintf(out, "Backend: %s\n", stats.Backend)

	names := make([]string, 0, len(stats.Counts))
	for ns := range stats.Counts {
		names = append(names, ns)
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintln(out, "No documents.")
	}
	for _, ns := range names {
		fmt.Fprintf(out, "  %-10s %d\n", ns, stats.Counts[ns])
	}

	if hc, ok := store.(healthChecker); ok {
		health, err := hc.Health(ctx)
		if err != nil {
			return fmt.Errorf("vector service unreachable: %w", err)
		}
		fmt.Fprintf(out, "Service: %s, model loaded: %t\n", health.Status, health.ModelLoaded)
	}
	return nil
}
