package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/phrazzld/artcache/internal/domain"
	"github.com/spf13/cobra"
)

func (c *cli) fetchCmd() *cobra.Command {
	var priority int
	cmd := &cobra.Command{
		Use:   "fetch <locator>...",
		Short: "Download images into the cache",
		Long: `Download each locator, derive its thumbnail and store both. Locators
already in the cache are skipped. A locator is an absolute URL or an object
name joined with fetch.base_url.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.loader.Prefetch(cmd.Context(), args, priority); err != nil {
				return err
			}
			for _, loc := range args {
				fmt.Fprintln(cmd.OutOrStdout(), loc)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "queue priority; higher runs first")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	var (
		variant string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "get <locator>",
		Short: "Write a cached image, fetching it first if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := domain.ParseVariant(variant)
			if err != nil {
				return err
			}
			lease, err := c.app.loader.Open(cmd.Context(), args[0], v)
			if err != nil {
				return err
			}
			defer lease.Release()

			data, ok := c.app.cache.Resolve(lease.Handle())
			if !ok {
				return fmt.Errorf("handle for %s was revoked", args[0])
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "derived", "payload to write: derived or original")
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default stdout)")
	return cmd
}

func (c *cli) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List cached image IDs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := c.app.cache.IDs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store, registry and queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.app.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			queue := c.app.coord.Status()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"images":        st.Store.Count,
					"stored_bytes":  st.Store.TotalBytes,
					"handles":       st.Registry.Count,
					"handle_bytes":  st.Registry.TotalBytes,
					"queue_limit":   queue.Limit,
					"queue_running": queue.Running,
					"queue_waiting": queue.Queued,
				})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "images\t%d\n", st.Store.Count)
			fmt.Fprintf(w, "stored bytes\t%d\n", st.Store.TotalBytes)
			fmt.Fprintf(w, "handles\t%d\n", st.Registry.Count)
			fmt.Fprintf(w, "handle bytes\t%d\n", st.Registry.TotalBytes)
			fmt.Fprintf(w, "queue limit\t%d\n", queue.Limit)
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Remove images from the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := c.app.cache.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every image from the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.cache.Clear(cmd.Context())
		},
	}
}

func (c *cli) generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate images for a prompt and cache them",
		Long: `Generate images with the configured model and store each one with a
thumbnail. The generated IDs are printed one per line. Requires
llm.gemini_api_key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := c.app.loader.Generate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
