package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/mq"
)

// NewWatchCmd создаёт команду, печатающую события задач из RabbitMQ.
func NewWatchCmd(amqpURLFn func() string, outputFn func() *Output) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream job lifecycle events from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			url := amqpURLFn()
			if url == "" {
				return fmt.Errorf("AMQP URL is not set: use --amqp-url or CRONKEEPER_AMQP_URL")
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

			conn, err := mq.NewConnection(mq.ConnectionConfig{
				URL:    url,
				Name:   "cronctl-watch",
				Policy: mq.WatchPolicy,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Pattern: mq.RoutingKey(pattern),
				Handler: func(_ context.Context, e domain.JobEvent) error {
					printEvent(out, e)
					return nil
				},
			})

			out.Success(fmt.Sprintf("Watching %s (%s), Ctrl+C to stop", mq.ExchangeJobs, pattern))
			err = consumer.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", string(mq.RoutingKeyAllJobs), "Routing key pattern, e.g. 'job.deleted'")

	return cmd
}

func printEvent(out *Output, e domain.JobEvent) {
	if out.JSONMode() {
		out.JSON(e)
		return
	}
	out.Line(fmt.Sprintf("%s  %-13s %-24s %s enabled=%t",
		e.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), e.Type, e.Job.Name, e.Job.Expression, e.Job.Enabled))
}
