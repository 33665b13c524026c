package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/global"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/elastic"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexColumns = []output.Column{
	{Key: "index", Title: "INDEX"},
	{Key: "health", Title: "HEALTH"},
	{Key: "status", Title: "STATUS"},
	{Key: "docs.count", Title: "DOCS"},
	{Key: "store.size", Title: "SIZE"},
	{Key: "pri", Title: "PRI"},
	{Key: "rep", Title: "REP"},
}

func NewCmdElastic() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "elastic",
		Aliases: []string{"es"},
		Short:   "Query and manage Elasticsearch/OpenSearch clusters",
		Long: `Query and manage Elasticsearch or OpenSearch clusters.
Select a cluster with --cluster/-c (a section such as ELASTIC or ELASTIC_PROD).`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
		PersistentPreRunE: utils.SelectSection("cluster", config.PrefixElastic),
	}
	cmd.PersistentFlags().StringP("cluster", "c", "", "Config section of the cluster")

	cmd.AddCommand(NewCmdElasticInfo())
	cmd.AddCommand(NewCmdElasticHealth())
	cmd.AddCommand(NewCmdElasticIndices())
	cmd.AddCommand(NewCmdElasticCreateIndex())
	cmd.AddCommand(NewCmdElasticMapping())
	cmd.AddCommand(NewCmdElasticSettings())
	cmd.AddCommand(NewCmdElasticAliases())
	cmd.AddCommand(NewCmdElasticUpdateSettings())
	cmd.AddCommand(NewCmdElasticSearch())
	cmd.AddCommand(NewCmdElasticReindex())
	cmd.AddCommand(NewCmdElasticDelete())

	return cmd
}

func elasticClient(ctx context.Context) (*elastic.Client, error) {
	sel, err := utils.SelectionFrom(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := sel.Provider.Elastic(sel.Section)
	if err != nil {
		return nil, err
	}
	return elastic.New(cfg)
}

// newMapCommand builds the subcommands that print one response map.
func newMapCommand(use, short string, args cobra.PositionalArgs,
	fetch func(ctx context.Context, c *elastic.Client, args []string) (map[string]any, error)) *cobra.Command {
	o := &utils.OutputOptions{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.Printer(cmd)
			if err != nil {
				return err
			}
			c, err := elasticClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := fetch(cmd.Context(), c, args)
			if err != nil {
				return err
			}
			return p.Map(res)
		},
	}
	o.AddFlags(cmd)
	return cmd
}

func NewCmdElasticInfo() *cobra.Command {
	return newMapCommand("info", "Show cluster information", cobra.NoArgs,
		func(ctx context.Context, c *elastic.Client, _ []string) (map[string]any, error) {
			return c.Info(ctx)
		})
}

func NewCmdElasticHealth() *cobra.Command {
	return newMapCommand("health", "Show cluster health", cobra.NoArgs,
		func(ctx context.Context, c *elastic.Client, _ []string) (map[string]any, error) {
			return c.Health(ctx)
		})
}

func NewCmdElasticMapping() *cobra.Command {
	return newMapCommand("mapping INDEX", "Show the mapping of an index", cobra.ExactArgs(1),
		func(ctx context.Context, c *elastic.Client, args []string) (map[string]any, error) {
			return c.Mapping(ctx, args[0])
		})
}

func NewCmdElasticSettings() *cobra.Command {
	return newMapCommand("settings INDEX", "Show the settings of an index", cobra.ExactArgs(1),
		func(ctx context.Context, c *elastic.Client, args []string) (map[string]any, error) {
			return c.Settings(ctx, args[0])
		})
}

func NewCmdElasticAliases() *cobra.Command {
	return newMapCommand("aliases [INDEX]", "Show index aliases", cobra.MaximumNArgs(1),
		func(ctx context.Context, c *elastic.Client, args []string) (map[string]any, error) {
			index := ""
			if len(args) == 1 {
				index = args[0]
			}
			return c.Aliases(ctx, index)
		})
}

func NewCmdElasticUpdateSettings() *cobra.Command {
	return newMapCommand("update-settings INDEX key=value...", "Update index settings", cobra.MinimumNArgs(2),
		func(ctx context.Context, c *elastic.Client, args []string) (map[string]any, error) {
			settings := map[string]any{}
			for _, kv := range args[1:] {
				k, v, err := utils.ParseKeyValue(kv)
				if err != nil {
					return nil, err
				}
				settings[k] = config.ParseScalar(v)
			}
			return c.UpdateSettings(ctx, args[0], settings)
		})
}

func NewCmdElasticCreateIndex() *cobra.Command {
	var shards, replicas int
	cmd := newMapCommand("create-index NAME", "Create an index", cobra.ExactArgs(1),
		func(ctx context.Context, c *elastic.Client, args []string) (map[string]any, error) {
			return c.CreateIndex(ctx, args[0], shards, replicas)
		})
	cmd.Flags().IntVar(&shards, "shards", 1, "Number of primary shards")
	cmd.Flags().IntVar(&replicas, "replicas", 1, "Number of replicas")
	return cmd
}

type ElasticIndicesOptions struct {
	utils.OutputOptions
	Limit int
}

func NewCmdElasticIndices() *cobra.Command {
	o := &ElasticIndicesOptions{}
	cmd := &cobra.Command{
		Use:   "indices",
		Short: "List indices sorted by name",
		Long: `List the user indices sorted by name; hidden indices (starting with ".")
are left out. --limit N shows the N last names, newest first for
date-suffixed indices.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.Printer(cmd)
			if err != nil {
				return err
			}
			c, err := elasticClient(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := c.Indices(cmd.Context())
			if err != nil {
				return err
			}
			return p.Table(elastic.LimitIndices(rows, o.Limit), indexColumns)
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().IntVarP(&o.Limit, "limit", "l", 0, "Show only the last N indices")
	return cmd
}

type ElasticSearchOptions struct {
	utils.OutputOptions
	Query string
	Size  int
}

func NewCmdElasticSearch() *cobra.Command {
	o := &ElasticSearchOptions{}
	cmd := &cobra.Command{
		Use:   "search INDEX",
		Short: "Search an index and print the matching documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := o.Format()
			if err != nil {
				return err
			}
			c, err := elasticClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.Search(cmd.Context(), args[0], o.Query, o.Size)
			if err != nil {
				return err
			}
			docs := elastic.Hits(res)
			if f == output.CSV {
				return output.RenderTable(cmd.OutOrStdout(), docs, nil, f)
			}
			if f == output.Text {
				f = output.JSON
			}
			return output.Dump(cmd.OutOrStdout(), docs, f)
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().StringVarP(&o.Query, "query", "q", "", "query_string query (default match_all)")
	cmd.Flags().IntVar(&o.Size, "size", 10, "Maximum number of hits")
	return cmd
}

// BulkIndexOptions drives reindex and delete over a wildcard pattern.
type BulkIndexOptions struct {
	Pattern string
	Suffix  string
	Force   bool
	DryRun  bool

	in  *bufio.Reader
	out io.Writer
}

func (o *BulkIndexOptions) Complete(cmd *cobra.Command, args []string) {
	o.Pattern = args[0]
	o.in = bufio.NewReader(cmd.InOrStdin())
	o.out = cmd.OutOrStdout()
}

func (o *BulkIndexOptions) Validate() error {
	if o.Pattern == "" {
		return errors.New("pattern must not be empty")
	}
	return nil
}

// Run applies action to every index matching the pattern. Without --force
// each index is confirmed first; with --force on a terminal a progress bar
// replaces the per-index lines.
func (o *BulkIndexOptions) Run(ctx context.Context, verb string, describe func(index string) string,
	action func(ctx context.Context, c *elastic.Client, row map[string]any) (string, error)) error {
	c, err := elasticClient(ctx)
	if err != nil {
		return err
	}
	rows, err := c.Matching(ctx, o.Pattern)
	if err != nil {
		return err
	}

	if o.DryRun {
		for _, r := range rows {
			fmt.Fprintf(o.out, "Would %s\n", describe(elastic.IndexName(r)))
		}
		return nil
	}

	var bar *progressbar.ProgressBar
	if o.Force && global.StdoutIsTerminal {
		bar = progressbar.Default(int64(len(rows)), verb)
	}
	done := 0
	for _, r := range rows {
		name := elastic.IndexName(r)
		if !o.Force && !utils.Confirm(o.in, o.out, fmt.Sprintf("%s?", describe(name))) {
			fmt.Fprintf(o.out, "Skipped %s\n", name)
			continue
		}
		msg, err := action(ctx, c, r)
		if err != nil {
			return err
		}
		done++
		if bar != nil {
			_ = bar.Add(1)
			continue
		}
		fmt.Fprintln(o.out, msg)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(o.out)
	}
	logger.Logger.Info("bulk index operation finished", "verb", verb, "matched", len(rows), "done", done)
	return nil
}

func NewCmdElasticReindex() *cobra.Command {
	o := &BulkIndexOptions{}
	cmd := &cobra.Command{
		Use:   "reindex PATTERN",
		Short: "Reindex every index matching a wildcard pattern",
		Long: `Reindex every index matching PATTERN into {index}-{suffix}. A pattern
without "*" gets one appended. Each index is confirmed unless --force is
given; --dry-run only prints what would happen.`,
		Example: `  pyadm elastic reindex rsyslog-2023
  pyadm elastic reindex "logs-*-2024.01" --suffix v2 --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context(), "reindexing",
				func(index string) string {
					return fmt.Sprintf("reindex %s to %s-%s", index, index, o.Suffix)
				},
				func(ctx context.Context, c *elastic.Client, row map[string]any) (string, error) {
					src := elastic.IndexName(row)
					dst := src + "-" + o.Suffix
					res, err := c.Reindex(ctx, src, dst)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("Reindexed %s to %s (%s documents)", src, dst, output.FormatValue(res["total"])), nil
				})
		},
	}
	cmd.Flags().StringVar(&o.Suffix, "suffix", "reindex", "Suffix of the destination index")
	cmd.Flags().BoolVarP(&o.Force, "force", "f", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "Only print the matching indices")
	return cmd
}

func NewCmdElasticDelete() *cobra.Command {
	o := &BulkIndexOptions{}
	cmd := &cobra.Command{
		Use:   "delete PATTERN",
		Short: "Delete every index matching a wildcard pattern",
		Long: `Delete every index matching PATTERN. A pattern without "*" gets one
appended. Each index is confirmed unless --force is given; --dry-run only
prints what would happen.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context(), "deleting",
				func(index string) string { return "delete index " + index },
				func(ctx context.Context, c *elastic.Client, row map[string]any) (string, error) {
					name := elastic.IndexName(row)
					if _, err := c.DeleteIndex(ctx, name); err != nil {
						return "", err
					}
					return fmt.Sprintf("Index %s with UUID %s deleted.", name, output.FormatValue(row["uuid"])), nil
				})
		},
	}
	cmd.Flags().BoolVarP(&o.Force, "force", "f", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "Only print the matching indices")
	return cmd
}
