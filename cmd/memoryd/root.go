package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m-mizutani/clog"
	"github.com/spf13/cobra"

	"github.com/pi-llama/memoryd/common/version"
	"github.com/pi-llama/memoryd/internal/memoryd/app"
	"github.com/pi-llama/memoryd/internal/memoryd/config"
	"github.com/pi-llama/memoryd/internal/memoryd/memory"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "memoryd",
		Short:         "Semantic memory service",
		Long:          `memoryd stores text memories with embeddings and serves similarity search over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			c.cfg, c.logger = cfg, logger
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML config file (default $MEMORYD_CONFIG)")

	root.AddCommand(
		c.serveCmd(),
		c.saveCmd(),
		c.listCmd(),
		c.searchCmd(),
		c.deleteCmd(),
		versionCmd(),
	)
	return root
}

// newLogger builds the process logger: JSON for machines, clog for a
// terminal.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	switch cfg.Format {
	case config.FormatConsole:
		h = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithColor(true),
		)
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h), nil
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

// withService opens the configured store for a one-shot command.
func (c *cli) withService(cmd *cobra.Command, fn func(*memory.Service) error) error {
	a, err := app.New(cmd.Context(), c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Stop()
	return fn(a.Service())
}

func (c *cli) saveCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "save <content>",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("content must not be empty")
			}
			return c.withService(cmd, func(svc *memory.Service) error {
				rec, err := svc.Save(cmd.Context(), content, category)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id":            rec.ID,
					"content":       rec.Content,
					"category":      rec.Category,
					"created_at":    memory.FormatTime(rec.CreatedAt),
					"has_embedding": rec.HasEmbedding(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", memory.DefaultCategory, "Memory category")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var (
		category string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return c.withService(cmd, func(svc *memory.Service) error {
				records, err := svc.List(cmd.Context(), category, limit)
				if err != nil {
					return err
				}
				items := make([]map[string]any, len(records))
				for i, rec := range records {
					items[i] = map[string]any{
						"id":         rec.ID,
						"content":    rec.Content,
						"category":   rec.Category,
						"created_at": memory.FormatTime(rec.CreatedAt),
					}
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list this category")
	cmd.Flags().IntVar(&limit, "limit", memory.DefaultListLimit, "Maximum number of memories")
	return cmd
}

func (c *cli) searchCmd() *cobra.Command {
	var (
		limit     int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("query must not be empty")
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			opts := []memory.SearchOption{memory.WithLimit(limit)}
			if cmd.Flags().Changed("threshold") {
				opts = append(opts, memory.WithThreshold(threshold))
			}
			return c.withService(cmd, func(svc *memory.Service) error {
				res, err := svc.Search(cmd.Context(), query, opts...)
				if err != nil {
					return err
				}
				results := make([]map[string]any, len(res.Matches))
				for i, m := range res.Matches {
					results[i] = map[string]any{
						"id":         m.ID,
						"content":    m.Content,
						"category":   m.Category,
						"similarity": m.Similarity,
						"created_at": memory.FormatTime(m.CreatedAt),
					}
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"query":    query,
					"results":  results,
					"fallback": res.Fallback,
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", memory.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", memory.DefaultThreshold, "Minimum similarity for vector matches")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("memory %q: %w", args[0], memory.ErrNotFound)
			}
			return c.withService(cmd, func(svc *memory.Service) error {
				deleted, err := svc.Delete(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("memory %d: %w", id, memory.ErrNotFound)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": true, "id": id})
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memoryd %s\n", version.Info())
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
