package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSystemCmd создаёт группу команд для работы с живым crontab.
func NewSystemCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Inspect the live crontab",
	}

	cmd.AddCommand(
		newSystemListCmd(clientFn, outputFn),
		newSystemValidateCmd(clientFn, outputFn),
	)

	return cmd
}

func newSystemListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var managedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every crontab entry, managed or not",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, err := client.ListSystemJobs()
			if err != nil {
				return err
			}

			if managedOnly {
				filtered := entries[:0]
				for _, e := range entries {
					if e.Managed {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}

			headers := []string{"NAME", "EXPRESSION", "ENABLED", "MANAGED", "COMMAND"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				name := e.Name
				if name == "" {
					name = "-"
				}
				rows[i] = []string{
					name, e.Expression, strconv.FormatBool(e.Enabled),
					strconv.FormatBool(e.Managed), truncate(e.Command, 60),
				}
			}

			out.Print(headers, rows, entries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&managedOnly, "managed", false, "Only entries tagged with a job name")

	return cmd
}

func newSystemValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate EXPRESSION",
		Short: "Check a cron expression without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			valid, err := client.Validate(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(map[string]any{"expression": args[0], "valid": valid})
			} else {
				out.Line(fmt.Sprintf("%q valid=%t", args[0], valid))
			}
			if !valid {
				return fmt.Errorf("invalid cron expression %q", args[0])
			}
			return nil
		},
	}
}
