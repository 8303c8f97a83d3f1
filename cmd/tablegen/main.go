package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mmrzaf/tablegen/internal/app"
	"github.com/mmrzaf/tablegen/internal/config"
	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/generators"
	"github.com/mmrzaf/tablegen/internal/infra/repos/jobs"
	"github.com/mmrzaf/tablegen/internal/infra/repos/requests"
	"github.com/mmrzaf/tablegen/internal/llm"
	"github.com/mmrzaf/tablegen/internal/logging"
	"github.com/mmrzaf/tablegen/internal/registry"
	"github.com/mmrzaf/tablegen/internal/validation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfg         *config.Config
	requestsDir string
	jobStore    string
	dbDSN       string
	redisURL    string
	logLevel    string
)

func main() {
	cfg = config.Load()

	rootCmd := &cobra.Command{
		Use:           "tablegen",
		Short:         "Synthetic relational dataset generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&requestsDir, "requests-dir", cfg.RequestsDir, "Stored requests directory")
	rootCmd.PersistentFlags().StringVar(&jobStore, "store", cfg.JobStore, "Job store (memory|sqlite|postgres|redis)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", cfg.DBDSN, "Job store path or DSN")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", cfg.RedisURL, "Redis URL for the redis job store")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "Log level")

	rootCmd.AddCommand(generateCmd(), validateCmd(), orderCmd(), requestsCmd(), jobsCmd(), methodsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func effectiveConfig() *config.Config {
	c := *cfg
	c.RequestsDir = requestsDir
	c.JobStore = jobStore
	c.DBDSN = dbDSN
	c.RedisURL = redisURL
	c.LogLevel = logLevel
	return &c
}

func openStore(ctx context.Context) (jobs.Repository, error) {
	return jobs.Open(ctx, effectiveConfig())
}

func newRegistry(c *config.Config) *registry.GeneratorRegistry {
	var client generators.CompletionClient
	if c.OpenAIKey != "" {
		client = llm.NewClient(c.OpenAIKey, c.OpenAIBaseURL, c.LLMTimeout)
	}
	return registry.DefaultGeneratorRegistry(client)
}

// loadRequest reads a request from a file path, or by id from the requests
// directory.
func loadRequest(ref string) (*domain.GenerationRequest, error) {
	if ref == "" {
		return nil, errors.New("--request is required")
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, err
		}
		return requests.Decode(data, filepath.Ext(ref))
	}
	entry, err := requests.NewFileRepository(requestsDir).Get(ref)
	if err != nil {
		return nil, err
	}
	return entry.Request, nil
}

func generateCmd() *cobra.Command {
	var (
		requestRef string
		format     string
		outPath    string
		seed       int64
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a dataset from a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadRequest(requestRef)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				req.Config.Seed = &seed
			}
			if format != "" {
				req.Config.OutputFormat = format
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := effectiveConfig()
			logger := logging.NewLogger(c.LogLevel)
			store, err := jobs.Open(ctx, c)
			if err != nil {
				return err
			}
			defer store.Close()

			pool := app.NewWorkerPool(1, 1)
			defer pool.Close()
			svc := app.NewJobService(store, newRegistry(c), pool, logger, app.JobServiceOptions{DefaultLocale: c.DefaultLocale})

			job, err := svc.StartJob(ctx, req)
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(os.Stderr, "Job started: %s\n", job.ID)
			}

			job, err = waitWithProgress(ctx, svc, job.ID, quiet)
			if err != nil {
				return err
			}
			switch job.Status {
			case domain.JobStatusCompleted:
			case domain.JobStatusFailed:
				return fmt.Errorf("job failed: %s", job.Error)
			default:
				return fmt.Errorf("job %s", job.Status)
			}

			var w io.Writer = os.Stdout
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if _, err := svc.Export(context.Background(), job.ID, req.Config.OutputFormat, w); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(os.Stderr, "Generated %d rows\n", job.TotalRows)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestRef, "request", "r", "", "Request file path or stored request id")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (json|csv|sql|sqlite)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output file ('-' for stdout)")
	cmd.Flags().Int64VarP(&seed, "seed", "s", 0, "Seed for the random sources")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

// waitWithProgress polls the job until it finishes. An interrupt requests
// cancellation and keeps waiting for the job to stop.
func waitWithProgress(ctx context.Context, svc *app.JobService, id string, quiet bool) (*domain.Job, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	lastProgress := -1
	cancelled := false

	for {
		job, err := svc.GetJob(context.Background(), id)
		if err != nil {
			return nil, err
		}
		if !quiet && job.Progress != lastProgress {
			fmt.Fprintf(os.Stderr, "\rProgress: %3d%%", job.Progress)
			lastProgress = job.Progress
		}
		if job.Status.Terminal() {
			if !quiet {
				fmt.Fprintln(os.Stderr)
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				if !quiet {
					fmt.Fprintln(os.Stderr, "\nCancelling...")
				}
				if _, err := svc.CancelJob(context.Background(), id); err != nil && !errors.Is(err, jobs.ErrJobFinalized) {
					return nil, err
				}
			}
			<-ticker.C
		case <-ticker.C:
		}
	}
}

func validateCmd() *cobra.Command {
	var requestRef string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadRequest(requestRef)
			if err != nil {
				return err
			}
			validator := validation.NewValidator(registry.DefaultGeneratorRegistry(nil))
			if err := validator.ValidateRequest(req); err != nil {
				fmt.Printf("Validation failed: %v\n", err)
				return err
			}
			fmt.Printf("Request '%s' is valid\n", req.Config.JobName)
			return nil
		},
	}
	cmd.Flags().StringVarP(&requestRef, "request", "r", "", "Request file path or stored request id")
	return cmd
}

func orderCmd() *cobra.Command {
	var requestRef string
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the table generation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadRequest(requestRef)
			if err != nil {
				return err
			}
			res := validation.ResolveOrder(req.Tables)
			unresolved := make(map[string]bool, len(res.Unresolved))
			for _, id := range res.Unresolved {
				unresolved[id] = true
			}
			byID := make(map[string]domain.TableSpec, len(req.Tables))
			for _, t := range req.Tables {
				byID[t.ID] = t
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tID\tNAME\tDEPENDS ON\tNOTE")
			for i, id := range res.Order {
				t := byID[id]
				note := ""
				if unresolved[id] {
					note = "cycle"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, t.ID, t.Name, strings.Join(validation.TableDependencies(t), ","), note)
			}
			w.Flush()
			if res.HasCycle() {
				fmt.Fprintf(os.Stderr, "Warning: dependency cycle among %s; their foreign keys will hold error values\n",
					strings.Join(validation.OrderNames(req.Tables, res.Unresolved), ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&requestRef, "request", "r", "", "Request file path or stored request id")
	return cmd
}

func requestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Browse stored requests",
	}

	var format string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := requests.NewFileRepository(requestsDir).List()
			if err != nil {
				return err
			}
			if format == "json" {
				data, _ := json.MarshalIndent(list, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tJOB NAME\tTABLES\tROWS\tFORMAT")
			for _, e := range list {
				rows := 0
				for _, t := range e.Request.Tables {
					rows += t.RowsCount
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", e.ID, e.Request.Config.JobName, len(e.Request.Tables), rows, e.Request.Config.OutputFormat)
			}
			w.Flush()
			return nil
		},
	}
	listCmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := requests.NewFileRepository(requestsDir).Get(args[0])
			if err != nil {
				return err
			}
			data, _ := yaml.Marshal(entry.Request)
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel jobs",
	}

	var limit int
	var status string
	var format string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.ListJobs(cmd.Context(), limit, status)
			if err != nil {
				return err
			}
			for _, j := range list {
				j.Data = nil
			}

			if format == "json" {
				data, _ := json.MarshalIndent(list, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tROWS\tCREATED")
			for _, j := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%s\n",
					shortID(j.ID), j.Name, j.Status, j.Progress, j.TotalRows, j.CreatedAt.Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Limit results")
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")

	var withData bool
	showCmd := &cobra.Command{
		Use:   "show <job_id>",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !withData {
				job.Data = nil
			}
			data, _ := json.MarshalIndent(job, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&withData, "data", false, "Include generated data")

	cancelCmd := &cobra.Command{
		Use:   "cancel <job_id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := effectiveConfig()
			store, err := jobs.Open(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer store.Close()

			pool := app.NewWorkerPool(1, 0)
			defer pool.Close()
			svc := app.NewJobService(store, registry.DefaultGeneratorRegistry(nil), pool, logging.NewLogger(c.LogLevel), app.JobServiceOptions{})
			job, err := svc.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Job %s: %s (cancel requested)\n", job.ID, job.Status)
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, cancelCmd)
	return cmd
}

func methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List generator types and faker methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.DefaultGeneratorRegistry(nil)
			fmt.Println("Types:")
			for _, k := range reg.List() {
				fmt.Println("  " + k)
			}
			fmt.Println("Faker methods:")
			for _, m := range reg.FakerMethods() {
				fmt.Println("  " + m)
			}
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
