// Overseer CLI — инструмент командной строки для управления
// executions и координационными сообщениями.
//
// Использование:
//
//	overseer [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	exec  Управление executions
//	msg   Координационные сообщения
//	ping  Проверка живости демона
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Overseer/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "overseer",
		Short:         "Overseer CLI — agentic loop orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() (*cli.Client, error) { return cli.NewClient(context.Background()) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewExecCmd(clientFn, outputFn),
		cli.NewMsgCmd(clientFn, outputFn),
		cli.NewPingCmd(outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
