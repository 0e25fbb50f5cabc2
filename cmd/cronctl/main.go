// cronctl — инструмент командной строки для управления задачами
// cronkeeper через HTTP API.
//
// Использование:
//
//	cronctl [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	job     Управление задачами
//	system  Живой crontab и проверка выражений
//	watch   Поток событий задач из RabbitMQ
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronkeeper/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var amqpURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "cronctl",
		Short:         "cronctl — manage cron jobs through cronkeeper",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("CRONKEEPER_API_URL", "http://localhost:8000"), "API server URL")
	rootCmd.PersistentFlags().StringVar(&amqpURL, "amqp-url", os.Getenv("CRONKEEPER_AMQP_URL"), "RabbitMQ URL for watch")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	amqpURLFn := func() string { return amqpURL }

	rootCmd.AddCommand(
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewSystemCmd(clientFn, outputFn),
		cli.NewWatchCmd(amqpURLFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
