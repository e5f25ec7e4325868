// Package askcmder provides the ask command that sends one message through a
// running relay and renders the persona's reply.
package askcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/relay"
	"github.com/papercomputeco/relay/relay/session"
)

const askLongDesc string = `Send a message to a persona through a running relay.

The message is read from the arguments, or from stdin when none are given.
The reply is rendered as markdown; memory directives have already been
applied and stripped by the relay.

Each invocation opens a new session unless --session names one. Memory is
kept per persona and client, so repeated asks with the same --client build
on the same history.

Examples:
  relay ask --persona aria --client me "What did we cover yesterday?"
  echo "Summarize our last chat" | relay ask -p aria -c me
  relay ask -p aria -c me --mode minimal --backend ollama "Hi"
  relay ask --cancel my-session`

const askShortDesc string = "Send a message to a persona"

type askCommander struct {
	relayTarget string
	sessionID   string
	personaID   string
	clientID    string
	mode        string
	backend     string
	cancel      string
	raw         bool
	verbose     bool

	viper *viper.Viper
}

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: askShortDesc,
		Long:  askLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.Flags, []string{config.FlagRelayTarget})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimRight(cmder.viper.GetString("client.relay_target"), "/")
			if cmder.cancel != "" {
				return cmder.runCancel(cmd.Context(), cmd.OutOrStdout(), target)
			}

			message, err := readMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), target, message)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagRelayTarget, &cmder.relayTarget)
	cmd.Flags().StringVarP(&cmder.personaID, "persona", "p", "", "Persona to address")
	cmd.Flags().StringVarP(&cmder.clientID, "client", "c", "", "Client id the memory is kept under")
	cmd.Flags().StringVar(&cmder.sessionID, "session", "", "Session id (defaults to a new session)")
	cmd.Flags().StringVar(&cmder.mode, "mode", "", "Context mode override (minimal, standard, maximal)")
	cmd.Flags().StringVar(&cmder.backend, "backend", "", "Backend to try first")
	cmd.Flags().StringVar(&cmder.cancel, "cancel", "", "Cancel the queued requests of a session")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the reply without markdown rendering")
	cmd.Flags().BoolVarP(&cmder.verbose, "verbose", "v", false, "Show the backend attempts and applied memory mutations")

	return cmd
}

func readMessage(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if f, ok := in.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("checking stdin: %w", err)
		}
		if fi.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("message argument required")
		}
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", errors.New("message argument required")
	}
	return message, nil
}

func (c *askCommander) run(ctx context.Context, out io.Writer, target, message string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}

	body, err := json.Marshal(relay.RespondRequest{
		SessionID: c.sessionID,
		PersonaID: c.personaID,
		ClientID:  c.clientID,
		Message:   message,
		Mode:      c.mode,
		Backend:   c.backend,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"/v1/respond", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res session.Result
	if err := do(req, &res); err != nil {
		return err
	}

	return c.render(out, &res)
}

func (c *askCommander) render(out io.Writer, res *session.Result) error {
	text := res.Text
	if !c.raw {
		rendered, err := cliui.RenderMarkdown(text, cliui.Width(out))
		if err == nil {
			text = rendered
		}
	}
	fmt.Fprintln(out, strings.TrimRight(text, "\n"))

	if !c.verbose {
		return nil
	}

	fmt.Fprintf(out, "\n  %s %s %s\n",
		cliui.KeyStyle.Render("Backend:"),
		cliui.NameStyle.Render(res.BackendUsed),
		cliui.DimStyle.Render(fmt.Sprintf("(%dms)", res.LatencyMs)),
	)
	for _, a := range res.Attempts {
		line := fmt.Sprintf("%s %s %dms", a.Backend, a.Outcome, a.LatencyMs)
		if a.Error != "" {
			line += ": " + a.Error
		}
		fmt.Fprintf(out, "    %s\n", cliui.DimStyle.Render(line))
	}
	for _, m := range res.MutationsApplied {
		fmt.Fprintf(out, "  %s %s %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(string(m.Kind)), m.Content)
	}
	if len(res.DegradedLayers) > 0 {
		fmt.Fprintf(out, "  %s degraded memory layers: %v\n", cliui.WarnStyle.Render("!"), res.DegradedLayers)
	}
	return nil
}

func (c *askCommander) runCancel(ctx context.Context, out io.Writer, target string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target+"/v1/sessions/"+c.cancel+"/pending", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	var res relay.CancelResponse
	if err := do(req, &res); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Cancelled %d queued requests on %s\n",
		cliui.SuccessMark, res.Cancelled, cliui.NameStyle.Render(res.SessionID))
	return nil
}

func do(req *http.Request, v any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr relay.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("relay returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("relay returned %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
