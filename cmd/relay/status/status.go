// Package statuscmder provides the status command for displaying the backend
// cascade and live sessions of a running relay.
package statuscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/relay/api"
	"github.com/papercomputeco/relay/pkg/circuit"
	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/config"
)

const requestTimeout = 10 * time.Second

const statusLongDesc string = `Show the state of a running relay.

Queries the relay API server for the backend cascade in priority order with
each backend's circuit breaker state, followed by the live sessions.

Examples:
  relay status
  relay status --api-target http://relay.internal:8081`

const statusShortDesc string = "Show backend circuits and live sessions"

type statusCommander struct {
	apiTarget string
	viper     *viper.Viper
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.Flags, []string{config.FlagAPITarget})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *statusCommander) run(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	target := strings.TrimRight(c.viper.GetString("client.api_target"), "/")

	var backends api.BackendsResponse
	if err := getJSON(ctx, target+"/v1/backends", &backends); err != nil {
		return err
	}

	var sessions api.SessionsResponse
	if err := getJSON(ctx, target+"/v1/sessions", &sessions); err != nil {
		return err
	}

	RenderBackends(out, backends)
	RenderSessions(out, sessions)
	return nil
}

// RenderBackends prints the cascade with circuit state.
func RenderBackends(out io.Writer, resp api.BackendsResponse) {
	fmt.Fprintf(out, "\n  %s  %s\n\n",
		cliui.KeyStyle.Render("Circuit:"),
		cliui.DimStyle.Render(fmt.Sprintf("opens after %d failures, cooldown %s",
			resp.Circuit.Threshold, resp.Circuit.Cooldown)),
	)

	if len(resp.Backends) == 0 {
		fmt.Fprintf(out, "  %s No backends configured.\n", cliui.DimStyle.Render("●"))
		return
	}

	maxLen := 0
	for _, b := range resp.Backends {
		maxLen = max(maxLen, len(b.Name))
	}

	for _, b := range resp.Backends {
		status := string(b.Circuit.Status)
		if status == "" {
			status = string(circuit.StatusClosed)
		}

		detail := fmt.Sprintf("priority %d, %s, budget %d", b.Priority, b.Capability, b.TokenBudget)
		if b.Circuit.ConsecutiveFailures > 0 {
			detail += fmt.Sprintf(", %d failures", b.Circuit.ConsecutiveFailures)
		}

		fmt.Fprintf(out, "  %s %s  %s  %s\n",
			cliui.StatusStyle(status).Render("●"),
			cliui.NameStyle.Render(fmt.Sprintf("%-*s", maxLen, b.Name)),
			cliui.StatusStyle(status).Render(fmt.Sprintf("%-9s", status)),
			cliui.DimStyle.Render(detail),
		)
	}
}

// RenderSessions prints live sessions.
func RenderSessions(out io.Writer, resp api.SessionsResponse) {
	fmt.Fprintf(out, "\n  %s  %s\n\n",
		cliui.KeyStyle.Render("Sessions:"),
		cliui.NameStyle.Render(strconv.Itoa(len(resp.Sessions))),
	)

	for _, s := range resp.Sessions {
		state := "idle"
		if s.Busy {
			state = "busy"
		}
		fmt.Fprintf(out, "  %s %s/%s  %s\n",
			cliui.DimStyle.Render("-"),
			cliui.NameStyle.Render(s.PersonaID),
			s.ClientID,
			cliui.DimStyle.Render(fmt.Sprintf("%s, %d queued, active %s ago",
				state, s.QueueDepth, cliui.FormatDuration(time.Since(s.LastActivity)))),
		)
	}
	fmt.Fprintln(out)
}

func getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("querying relay API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("relay API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
