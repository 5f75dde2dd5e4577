package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"citnet/config"
	"citnet/models"
	"citnet/services"
	"citnet/storage"
)

var (
	expandDirection string
	expandDepth     int
	expandYears     string

	generateRelation string
	clusterRelation  string
	exportRelation   string

	exportDir string
	exportS3  bool

	runsLimit int
)

func init() {
	expandCmd.Flags().StringVar(&expandDirection, "direction", "references", "references, citations or both")
	expandCmd.Flags().IntVar(&expandDepth, "depth", 0, "Expand nodes with depth below this bound (default SAMPLER_MAX_DEPTH); <=0 snowballs without limit, bounded only by --years")
	expandCmd.Flags().StringVar(&expandYears, "years", "", "Only follow ids published in this interval, both years included, e.g. 1950-2000")

	generateCmd.Flags().StringVarP(&generateRelation, "type", "t", "direct_citation", "direct_citation, bibliographic_coupling or co_citation")
	clusterCmd.Flags().StringVarP(&clusterRelation, "type", "t", "co_citation", "Relation whose edges are clustered")

	exportCmd.Flags().StringVar(&exportDir, "dir", "export", "Output directory for nodes.csv and edges.csv")
	exportCmd.Flags().StringVarP(&exportRelation, "type", "t", "", "Only export this relation (default all)")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "Upload the export to the configured S3 bucket")

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show")

	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(setIntervalCmd)
}

// signalContext is cancelled on SIGINT/SIGTERM so a running batch can stop cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Insert the bibcodes listed in FILE as seed nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		ids, err := readSeedIDs(f)
		if err != nil {
			return err
		}

		a, err := initApp(nil)
		if err != nil {
			return err
		}
		defer a.close()
		sampler, err := a.sampler()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		run, err := sampler.Seed(ctx, ids)
		printRun(cmd.OutOrStdout(), run)
		return err
	},
}

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Expand the network along references and/or citations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		directions, err := parseDirections(expandDirection)
		if err != nil {
			return err
		}
		a, err := initApp(nil)
		if err != nil {
			return err
		}
		defer a.close()
		sampler, err := a.sampler()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("depth") {
			sampler.MaxDepth = expandDepth
		}
		if expandYears != "" {
			start, end, err := config.ParseInterval(expandYears)
			if err != nil {
				return err
			}
			sampler.Interval = models.YearInterval{Start: start, End: end}
		}

		ctx, cancel := signalContext()
		defer cancel()
		for _, d := range directions {
			run, err := sampler.Expand(ctx, d)
			printRun(cmd.OutOrStdout(), run)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compute relation edges between the sampled nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		relation, err := models.ParseRelationType(generateRelation)
		if err != nil {
			return err
		}
		a, err := initApp(nil)
		if err != nil {
			return err
		}
		defer a.close()

		run, err := services.NewEdgeGenerator(a.store, a.logger, a.metrics).Generate(cmd.Context(), relation)
		printRun(cmd.OutOrStdout(), run)
		return err
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Assign modularity clusters from a generated relation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		relation, err := models.ParseRelationType(clusterRelation)
		if err != nil {
			return err
		}
		a, err := initApp(nil)
		if err != nil {
			return err
		}
		defer a.close()

		run, err := services.NewClusterAssigner(a.store, a.logger, a.metrics).AssignClusters(cmd.Context(), relation)
		printRun(cmd.OutOrStdout(), run)
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write nodes.csv and edges.csv in Gephi spreadsheet format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var relations []models.RelationType
		if exportRelation != "" {
			r, err := models.ParseRelationType(exportRelation)
			if err != nil {
				return err
			}
			relations = append(relations, r)
		}
		a, err := initApp(nil)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		exporter := services.NewExporter(a.cfg, a.store, a.logger)
		files, err := exporter.Export(ctx, exportDir, relations...)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, f := range files {
			fmt.Fprintf(out, "%s %s\n", color.GreenString("wrote"), f)
		}
		if !exportS3 {
			return nil
		}
		client, err := storage.NewS3Client(ctx, a.cfg)
		if err != nil {
			return err
		}
		links, err := exporter.Upload(ctx, client, files)
		for _, l := range links {
			fmt.Fprintf(out, "%s %s\n", color.GreenString("uploaded"), l)
		}
		return err
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show node, edge and run counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(nil)
		if err != nil {
			return err
		}
		defer a.close()

		st, err := a.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		bold := color.New(color.Bold)
		bold.Fprintln(out, "Nodes")
		fmt.Fprintf(out, "  total                 %d\n", st.Nodes)
		fmt.Fprintf(out, "  processed references  %d\n", st.ProcessedReferences)
		fmt.Fprintf(out, "  processed citations   %d\n", st.ProcessedCitations)
		fmt.Fprintf(out, "  max depth             %d\n", st.MaxDepth)
		fmt.Fprintf(out, "  clusters              %d\n", st.Clusters)
		bold.Fprintln(out, "Edges")
		fmt.Fprintf(out, "  reference             %d\n", st.ReferenceEdges)
		for _, r := range models.RelationTypes {
			fmt.Fprintf(out, "  %-21s %d\n", r, st.RelationEdges[r])
		}
		fmt.Fprintf(out, "Runs %d\n", st.Runs)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs with their deferred and skipped ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(nil)
		if err != nil {
			return err
		}
		defer a.close()

		runs, err := a.store.Runs(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		for i := range runs {
			printRun(cmd.OutOrStdout(), &runs[i])
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Edit the user configuration file (~/.citnet/config.yaml)",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key KEY",
	Short: "Store the ADS API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateUserFile(cmd.OutOrStdout(), func(fc *config.FileConfig) error {
			fc.ADS.APIKey = strings.TrimSpace(args[0])
			return nil
		})
	},
}

var setIntervalCmd = &cobra.Command{
	Use:   "set-interval START-END",
	Short: "Store the default year interval for snowball sampling, e.g. 1930-1967",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := config.ParseInterval(args[0])
		if err != nil {
			return err
		}
		return updateUserFile(cmd.OutOrStdout(), func(fc *config.FileConfig) error {
			fc.Snowball.StartYear = start
			fc.Snowball.EndYear = end
			return nil
		})
	},
}

func updateUserFile(out io.Writer, edit func(fc *config.FileConfig) error) error {
	path := os.Getenv("CITNET_CONFIG_FILE")
	if path == "" {
		path = config.DefaultUserFile()
	}
	fc, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	if err := edit(fc); err != nil {
		return err
	}
	if err := config.SaveFile(path, fc); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", color.GreenString("saved"), path)
	return nil
}

// readSeedIDs reads one bibcode per line, skipping blank lines and # comments.
func readSeedIDs(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, strings.Fields(line)[0])
	}
	return ids, sc.Err()
}

func parseDirections(s string) ([]models.Direction, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") {
		return models.Directions, nil
	}
	d, err := models.ParseDirection(s)
	if err != nil {
		return nil, err
	}
	return []models.Direction{d}, nil
}

func printRun(out io.Writer, run *models.Run) {
	if run == nil {
		return
	}
	status := color.GreenString(run.Status)
	if run.Status == models.RunFailed {
		status = color.RedString(run.Status)
	}
	fmt.Fprintf(out, "%s %s %s [%s] queried=%d new_nodes=%d new_edges=%d\n",
		run.StartedAt.Format("2006-01-02 15:04:05"), run.Operation, run.Argument, status,
		run.Queried, run.NewNodes, run.NewEdges)
	if ids := services.RunIDs(run.Deferred); len(ids) > 0 {
		fmt.Fprintf(out, "  %s %s\n", color.YellowString("deferred:"), strings.Join(ids, ", "))
	}
	if ids := services.RunIDs(run.Skipped); len(ids) > 0 {
		fmt.Fprintf(out, "  %s %s\n", color.YellowString("skipped:"), strings.Join(ids, ", "))
	}
	if run.Error != "" {
		fmt.Fprintf(out, "  %s %s\n", color.RedString("error:"), run.Error)
	}
}
