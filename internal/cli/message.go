package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Overseer/internal/domain"
)

// NewMsgCmd создаёт группу команд координационных сообщений.
func NewMsgCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "msg",
		Short: "Manage coordination messages",
	}

	cmd.AddCommand(
		newMsgSendCmd(clientFn, outputFn),
		newMsgListCmd(clientFn, outputFn),
		newMsgResolveCmd(clientFn, outputFn),
	)

	return cmd
}

func newMsgSendCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	var (
		from    string
		to      string
		payload []string
		rawJSON string
	)

	cmd := &cobra.Command{
		Use:   "send KIND",
		Short: "Send a coordination message (alert, query or share)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			fromID, err := uuid.Parse(from)
			if err != nil {
				return fmt.Errorf("invalid --from id %q: %w", from, err)
			}

			var toID uuid.UUID
			if to != "" {
				toID, err = uuid.Parse(to)
				if err != nil {
					return fmt.Errorf("invalid --to id %q: %w", to, err)
				}
			}

			body, err := buildPayload(payload, rawJSON)
			if err != nil {
				return err
			}

			var msg *domain.Message
			switch domain.MessageKind(strings.ToUpper(args[0])) {
			case domain.KindAlert:
				msg, err = client.Coord.SendAlert(fromID, body)
			case domain.KindQuery:
				msg, err = client.Coord.SendQuery(fromID, toID, body)
			case domain.KindShare:
				msg, err = client.Coord.SendShare(fromID, toID, body)
			default:
				return fmt.Errorf("unknown message kind %q, expected alert, query or share", args[0])
			}
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Message sent: %s", msg.ID))
			out.Print(msgHeaders(), [][]string{msgRow(msg)}, msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Sender execution ID (required)")
	cmd.Flags().StringVar(&to, "to", "", "Target execution ID (required for query and share)")
	cmd.Flags().StringSliceVar(&payload, "payload", nil, "Payload values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&rawJSON, "json", "", "Payload as a raw JSON object")
	cmd.MarkFlagRequired("from")

	return cmd
}

func newMsgListCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	var exec string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unresolved messages, or all messages for an execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			var msgs []domain.Message
			if exec != "" {
				execID, err := uuid.Parse(exec)
				if err != nil {
					return fmt.Errorf("invalid --exec id %q: %w", exec, err)
				}
				msgs, err = client.Coord.ForExecution(execID)
				if err != nil {
					return err
				}
			} else {
				msgs, err = client.Coord.Unresolved()
				if err != nil {
					return err
				}
			}

			rows := make([][]string, len(msgs))
			for i := range msgs {
				rows[i] = msgRow(&msgs[i])
			}
			out.Print(msgHeaders(), rows, msgs)
			return nil
		},
	}

	cmd.Flags().StringVar(&exec, "exec", "", "Show all messages concerning this execution")

	return cmd
}

func newMsgResolveCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve ID",
		Short: "Mark a message as resolved",
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
				return fmt.Errorf("invalid message id %q: %w", args[0], err)
			}

			changed, err := client.Coord.Resolve(id)
			if err != nil {
				return err
			}
			if !changed {
				out.Success(fmt.Sprintf("Message already resolved: %s", id))
				return nil
			}
			out.Success(fmt.Sprintf("Message resolved: %s", id))
			return nil
		},
	}
}

// buildPayload собирает payload из пар KEY=VALUE или сырого JSON.
func buildPayload(pairs []string, rawJSON string) (map[string]any, error) {
	if rawJSON != "" {
		if len(pairs) > 0 {
			return nil, fmt.Errorf("--payload and --json are mutually exclusive")
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(rawJSON), &body); err != nil {
			return nil, fmt.Errorf("invalid --json payload: %w", err)
		}
		return body, nil
	}

	if len(pairs) == 0 {
		return nil, nil
	}
	body := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
		}
		body[parts[0]] = parts[1]
	}
	return body, nil
}

func msgHeaders() []string {
	return []string{"ID", "KIND", "FROM", "TO", "RESOLVED", "CREATED"}
}

func msgRow(m *domain.Message) []string {
	to := "*"
	if m.To != nil {
		to = m.To.String()
	}
	resolved := ""
	if m.IsResolved() {
		resolved = m.ResolvedAt.Format("2006-01-02 15:04:05")
	}
	return []string{
		m.ID.String(),
		string(m.Kind),
		m.From.String(),
		to,
		resolved,
		m.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
