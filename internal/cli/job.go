package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var jobHeaders = []string{"ID", "NAME", "EXPRESSION", "ENABLED", "NEXT_RUN", "COMMAND"}

func jobRow(j JobResponse) []string {
	return []string{
		j.ID, j.Name, j.Expression, strconv.FormatBool(j.Enabled), j.NextRunAt, truncate(j.Command, 48),
	}
}

// NewJobCmd создаёт группу команд для управления задачами.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage cron jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobCreateCmd(clientFn, outputFn),
		newJobUpdateCmd(clientFn, outputFn),
		newJobDeleteCmd(clientFn, outputFn),
		newJobEnableCmd(clientFn, outputFn),
		newJobDisableCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var enabledOnly, disabledOnly bool
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			opts := ListJobsOpts{Limit: limit, Offset: offset}
			switch {
			case enabledOnly && disabledOnly:
				return fmt.Errorf("--enabled and --disabled are mutually exclusive")
			case enabledOnly:
				opts.Enabled = boolPtr(true)
			case disabledOnly:
				opts.Enabled = boolPtr(false)
			}

			jobs, total, err := client.ListJobs(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = jobRow(j)
			}

			out.Print(jobHeaders, rows, jobs)
			if !out.JSONMode() && total > len(jobs) {
				out.Success(fmt.Sprintf("Showing %d of %d jobs", len(jobs), total))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only enabled jobs")
	cmd.Flags().BoolVar(&disabledOnly, "disabled", false, "Only disabled jobs")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (server default 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many jobs")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID|NAME",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := resolveJobID(client, args[0])
			if err != nil {
				return err
			}
			job, err := client.GetJob(id)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"FIELD", "VALUE"},
				[][]string{
					{"ID", job.ID},
					{"Name", job.Name},
					{"Expression", job.Expression},
					{"Command", job.Command},
					{"Description", job.Description},
					{"Enabled", strconv.FormatBool(job.Enabled)},
					{"Next run", job.NextRunAt},
					{"Created", job.CreatedAt},
					{"Updated", job.UpdatedAt},
				},
				job,
			)
			return nil
		},
	}
}

func newJobCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateJobRequest
	var disabled bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job and install it into crontab",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if disabled {
				req.Enabled = boolPtr(false)
			}

			job, err := client.CreateJob(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job created: %s", job.ID))
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Job name (required)")
	cmd.Flags().StringVar(&req.Expression, "schedule", "", "Cron expression, e.g. '0 2 * * *' (required)")
	cmd.Flags().StringVar(&req.Command, "command", "", "Shell command (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Free-form description")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the job disabled")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("schedule")
	cmd.MarkFlagRequired("command")

	return cmd
}

func newJobUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, expression, command, description string

	cmd := &cobra.Command{
		Use:   "update ID|NAME",
		Short: "Update job fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := UpdateJobRequest{}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("schedule") {
				req.Expression = &expression
			}
			if cmd.Flags().Changed("command") {
				req.Command = &command
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if req == (UpdateJobRequest{}) {
				return fmt.Errorf("nothing to update: pass at least one of --name, --schedule, --command, --description")
			}

			id, err := resolveJobID(client, args[0])
			if err != nil {
				return err
			}
			job, err := client.UpdateJob(id, req)
			if err != nil {
				return err
			}

			out.Success("Job updated")
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&expression, "schedule", "", "New cron expression")
	cmd.Flags().StringVar(&command, "command", "", "New shell command")
	cmd.Flags().StringVar(&description, "description", "", "New description")

	return cmd
}

func newJobDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID|NAME",
		Short: "Delete a job, its script and crontab entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := resolveJobID(client, args[0])
			if err != nil {
				return err
			}
			if err := client.DeleteJob(id); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job deleted: %s", args[0]))
			return nil
		},
	}
}

func newJobEnableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newJobToggleCmd(clientFn, outputFn, "enable", "Enable a job", (*Client).EnableJob)
}

func newJobDisableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newJobToggleCmd(clientFn, outputFn, "disable", "Disable a job (entry stays commented out)", (*Client).DisableJob)
}

func newJobToggleCmd(
	clientFn func() *Client,
	outputFn func() *Output,
	use, short string,
	call func(*Client, string) (*JobResponse, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID|NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := resolveJobID(client, args[0])
			if err != nil {
				return err
			}
			job, err := call(client, id)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job %sd: %s", use, job.Name))
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}
}

// resolveJobID принимает UUID или имя задачи.
// Имя ищется постранично через список задач.
func resolveJobID(client *Client, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}

	const page = 100
	for offset := 0; ; offset += page {
		jobs, total, err := client.ListJobs(ListJobsOpts{Limit: page, Offset: offset})
		if err != nil {
			return "", err
		}
		for _, j := range jobs {
			if j.Name == ref {
				return j.ID, nil
			}
		}
		if len(jobs) == 0 || offset+len(jobs) >= total {
			return "", fmt.Errorf("job %q not found", ref)
		}
	}
}

func boolPtr(b bool) *bool { return &b }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
