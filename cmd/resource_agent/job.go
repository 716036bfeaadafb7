package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/observability"
	"github.com/jonathan/resource-pipeline/internal/types"
)

var (
	jobActor     string
	jobNotes     string
	jobFields    []string
	jobStatuses  []string
	jobSlug      string
	jobLimit     int
	jobJSON      bool
	jobOlderThan string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and review update jobs",
}

var jobGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job and its proposed changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobGet,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE:  runJobList,
}

var jobRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a pending job to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobRun,
}

var jobApproveCmd = &cobra.Command{
	Use:   "approve <job-id>",
	Short: "Apply selected proposed fields",
	Long: `Applies the fields given with --field (repeatable or comma separated).
Without --field, every proposed change is applied.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobApprove,
}

var jobRejectCmd = &cobra.Command{
	Use:   "reject <job-id>",
	Short: "Close a job without applying anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobReject,
}

var jobAbandonCmd = &cobra.Command{
	Use:   "abandon [job-id]",
	Short: "Fail in-flight jobs whose run was interrupted",
	Long: `Moves an in-flight job (pending through approved) to failed so its resource
can be refreshed again. Without a job id, every in-flight job idle for longer
than --older-than (default from config abandon_after, 1h) is failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobAbandon,
}

func init() {
	jobListCmd.Flags().StringSliceVar(&jobStatuses, "status", nil, "Filter by status (repeatable)")
	jobListCmd.Flags().StringVar(&jobSlug, "slug", "", "Filter by resource slug")
	jobListCmd.Flags().IntVar(&jobLimit, "limit", 20, "Maximum jobs to list")

	jobApproveCmd.Flags().StringSliceVarP(&jobFields, "field", "f", nil, "Field to apply (repeatable)")
	jobApproveCmd.Flags().StringVar(&jobNotes, "notes", "", "Review notes")
	jobRejectCmd.Flags().StringVar(&jobNotes, "notes", "", "Reason for rejecting (required)")
	_ = jobRejectCmd.MarkFlagRequired("notes")
	jobAbandonCmd.Flags().StringVar(&jobNotes, "reason", "", "Message recorded on the failed job")
	jobAbandonCmd.Flags().StringVar(&jobOlderThan, "older-than", "", "Idle time after which an in-flight job is abandoned")

	for _, c := range []*cobra.Command{jobApproveCmd, jobRejectCmd} {
		c.Flags().StringVar(&jobActor, "actor", "", "Reviewer recorded on the job (default $USER)")
	}
	for _, c := range []*cobra.Command{jobGetCmd, jobListCmd, jobRunCmd, jobApproveCmd, jobRejectCmd, jobAbandonCmd} {
		c.Flags().BoolVar(&jobJSON, "json", false, "Print JSON")
	}

	jobCmd.AddCommand(jobGetCmd, jobListCmd, jobRunCmd, jobApproveCmd, jobRejectCmd, jobAbandonCmd)
	rootCmd.AddCommand(jobCmd)
}

func runJobGet(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.orch.GetJob(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printJob(job)
}

func runJobList(cmd *cobra.Command, _ []string) error {
	statuses, err := parseStatuses(jobStatuses)
	if err != nil {
		return err
	}
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	filter := db.JobFilter{Statuses: statuses, Limit: jobLimit}
	if jobSlug != "" {
		resource, err := a.store.GetResourceBySlug(ctx, jobSlug)
		if err != nil {
			return err
		}
		filter.ResourceID = &resource.ID
	}
	jobs, err := a.orch.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	if jobJSON {
		return writeJSON(os.Stdout, jobs)
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs.")
		return nil
	}
	_, _ = fmt.Fprintf(os.Stdout, "%-36s  %-24s %-18s %-9s %s\n", "ID", "RESOURCE", "STATUS", "CHANGES", "CREATED")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(os.Stdout, "%-36s  %-24s %-18s %-9d %s\n",
			j.ID, j.ResourceSlug, j.Status, len(j.ProposedChanges), j.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runJobRun(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	a, err := reviewerApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.orch.Run(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printJob(job)
}

func runJobApprove(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	fields := splitFields(jobFields)
	if len(fields) == 0 {
		job, err := a.orch.GetJob(ctx, id)
		if err != nil {
			return err
		}
		fields = job.ProposedFields()
	}
	req := types.ApproveRequest{Fields: fields, Notes: jobNotes}
	if err := req.Validate(); err != nil {
		return err
	}
	job, err := a.review.Approve(ctx, cliCaller(jobActor), id, req.Fields, req.Notes)
	if err != nil {
		return err
	}
	return printJob(job)
}

func runJobReject(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	req := types.RejectRequest{Notes: strings.TrimSpace(jobNotes)}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("--notes is required: %w", err)
	}
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.review.Reject(cmd.Context(), cliCaller(jobActor), id, req.Notes)
	if err != nil {
		return err
	}
	return printJob(job)
}

func runJobAbandon(cmd *cobra.Command, args []string) error {
	var id uuid.UUID
	if len(args) == 1 {
		var err error
		if id, err = parseJobID(args[0]); err != nil {
			return err
		}
	}
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if id != uuid.Nil {
		job, err := a.orch.Abandon(ctx, id, jobNotes)
		if err != nil {
			return err
		}
		return printJob(job)
	}

	olderThan := a.cfg.AbandonAfterDuration()
	if jobOlderThan != "" {
		if olderThan, err = time.ParseDuration(jobOlderThan); err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
	}
	count, err := a.orch.FailStale(ctx, olderThan)
	if err != nil {
		return err
	}
	if jobJSON {
		return writeJSON(os.Stdout, map[string]int{"abandoned": count})
	}
	_, _ = fmt.Fprintf(os.Stdout, "Abandoned %d job(s).\n", count)
	return nil
}

// reviewerApp builds an app; withPipeline also wires sources and the model.
func reviewerApp(cmd *cobra.Command, withPipeline bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts := appOptions{pipeline: withPipeline}
	if withPipeline {
		opts.onProgress = printProgress
	}
	return newApp(cmd.Context(), cfg, opts)
}

func parseJobID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id %q: %w", raw, err)
	}
	return id, nil
}

func parseStatuses(raw []string) ([]types.JobStatus, error) {
	var statuses []types.JobStatus
	for _, s := range raw {
		status := types.JobStatus(strings.TrimSpace(s))
		if !status.Valid() {
			return nil, fmt.Errorf("unknown job status %q", s)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// splitFields flattens comma-separated flag values and drops blanks.
func splitFields(raw []string) []string {
	var fields []string
	seen := make(map[string]bool)
	for _, item := range raw {
		for _, f := range strings.Split(item, ",") {
			f = strings.TrimSpace(f)
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields
}

func printJob(job *types.UpdateJob) error {
	if jobJSON {
		return writeJSON(os.Stdout, job)
	}
	observability.NewPrinter(os.Stdout).PrintJob(job)
	return nil
}
