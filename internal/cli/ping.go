package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Overseer/internal/ipc"
)

// NewPingCmd создаёт команду проверки живости демона.
func NewPingCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			client := ipc.NewClient(ipc.DefaultSocketPath(), 0)
			version, err := client.Ping()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Daemon alive, version %s", version))
			return nil
		},
	}
}
