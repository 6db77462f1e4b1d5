package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Overseer/internal/domain"
	"github.com/shaiso/Overseer/internal/ipc"
)

// NewExecCmd создаёт группу команд для управления executions.
func NewExecCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Manage executions",
	}

	cmd.AddCommand(
		newExecCreateCmd(clientFn, outputFn),
		newExecReadyCmd(clientFn, outputFn),
		newExecListCmd(clientFn, outputFn),
		newExecShowCmd(clientFn, outputFn),
		newExecStopCmd(clientFn, outputFn),
		newExecResumeCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecCreateCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	var (
		title    string
		parent   string
		deps     []string
		priority int
		draft    bool
		worktree string
		ctxPairs []string
	)

	cmd := &cobra.Command{
		Use:   "create LOOP_TYPE",
		Short: "Create a new execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			e := domain.NewExecution(args[0])
			e.Title = title
			e.Priority = priority
			e.WorktreePath = worktree

			if parent != "" {
				pid, err := uuid.Parse(parent)
				if err != nil {
					return fmt.Errorf("invalid parent id %q: %w", parent, err)
				}
				e.ParentID = &pid
			}

			for _, d := range deps {
				did, err := uuid.Parse(d)
				if err != nil {
					return fmt.Errorf("invalid dependency id %q: %w", d, err)
				}
				e.DependsOn = append(e.DependsOn, did)
			}

			if len(ctxPairs) > 0 {
				e.Context = make(map[string]any)
				for _, kv := range ctxPairs {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid context format %q, expected KEY=VALUE", kv)
					}
					e.Context[parts[0]] = parts[1]
				}
			}

			if !draft {
				e.MarkReady()
			}

			if err := client.Execs.Create(cmd.Context(), e); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution created: %s (%s)", e.ID, e.Status))

			// Будим демона; его недоступность не ошибка — планировщик
			// подхватит запись при очередном опросе
			if e.Status == domain.StatusPending {
				if err := client.IPC.NotifyPending(e.ID); err != nil {
					out.Warn(fmt.Sprintf("daemon notification failed: %v", err))
				}
			}

			out.Print(execHeaders(), [][]string{execRow(e)}, e)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Human-readable title")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent execution ID")
	cmd.Flags().StringSliceVar(&deps, "dep", nil, "Dependency execution ID (repeatable)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Dispatch priority (higher dispatches first)")
	cmd.Flags().BoolVar(&draft, "draft", false, "Create in DRAFT status instead of PENDING")
	cmd.Flags().StringVar(&worktree, "worktree", "", "Isolated worktree path")
	cmd.Flags().StringSliceVar(&ctxPairs, "context", nil, "Context values as KEY=VALUE (repeatable)")

	return cmd
}

func newExecReadyCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "ready ID",
		Short: "Promote a DRAFT execution to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid execution id %q: %w", args[0], err)
			}

			e, err := client.Execs.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !e.MarkReady() {
				return fmt.Errorf("execution %s is %s, only DRAFT can be promoted", id, e.Status)
			}
			if err := client.Execs.Update(cmd.Context(), e); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution ready: %s", e.ID))

			if err := client.IPC.NotifyPending(e.ID); err != nil {
				out.Warn(fmt.Sprintf("daemon notification failed: %v", err))
			}
			return nil
		},
	}
}

func newExecListCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions (unfinished by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			var execs []domain.Execution
			if status != "" {
				st, err := domain.ParseStatus(strings.ToUpper(status))
				if err != nil {
					return err
				}
				execs, err = client.Execs.ListByStatus(cmd.Context(), st, limit)
				if err != nil {
					return err
				}
			} else {
				execs, err = client.Execs.ListUnfinished(cmd.Context())
				if err != nil {
					return err
				}
			}

			rows := make([][]string, len(execs))
			for i := range execs {
				rows[i] = execRow(&execs[i])
			}
			out.Print(execHeaders(), rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (e.g. PENDING, RUNNING, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (with --status)")

	return cmd
}

func newExecShowCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid execution id %q: %w", args[0], err)
			}

			e, err := client.Execs.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			deps := make([]string, len(e.DependsOn))
			for i, d := range e.DependsOn {
				deps[i] = d.String()
			}

			out.Print(
				[]string{"ID", "LOOP_TYPE", "TITLE", "STATUS", "PRIORITY", "ITER", "TOKENS", "DEPS", "ERROR"},
				[][]string{{
					e.ID.String(),
					e.LoopType,
					e.Title,
					string(e.Status),
					strconv.Itoa(e.Priority),
					strconv.Itoa(e.Iteration),
					strconv.FormatInt(e.TokensUsed, 10),
					strings.Join(deps, ","),
					e.LastError,
				}},
				e,
			)
			return nil
		},
	}
}

func newExecStopCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid execution id %q: %w", args[0], err)
			}

			e, err := client.Execs.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !e.MarkStopped() {
				return fmt.Errorf("execution %s is already terminal (%s)", id, e.Status)
			}
			if err := client.Execs.Update(cmd.Context(), e); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution stopped: %s", e.ID))

			// Каскад по зависимым выполнит демон при следующем тике
			if err := client.IPC.NotifyPending(e.ID); err != nil {
				out.Warn(fmt.Sprintf("daemon notification failed: %v", err))
			}
			return nil
		},
	}
}

func newExecResumeCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a PAUSED or BLOCKED execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid execution id %q: %w", args[0], err)
			}

			e, err := client.Execs.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !e.IsResumable() {
				return fmt.Errorf("execution %s is %s, only PAUSED or BLOCKED can be resumed", id, e.Status)
			}

			// Возобновление делает демон: ему нужно заново передать
			// директиву движку, поэтому недоступность демона — ошибка
			if _, err := client.IPC.Call(ipc.Request{Kind: ipc.ReqExecutionResumed, ID: e.ID}); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution resumed: %s", e.ID))
			return nil
		},
	}
}

func execHeaders() []string {
	return []string{"ID", "LOOP_TYPE", "TITLE", "STATUS", "PRIORITY", "ITER", "CREATED"}
}

func execRow(e *domain.Execution) []string {
	return []string{
		e.ID.String(),
		e.LoopType,
		e.Title,
		string(e.Status),
		strconv.Itoa(e.Priority),
		strconv.Itoa(e.Iteration),
		e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
