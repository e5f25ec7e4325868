// Package authcmder provides the auth command for storing backend API
// credentials.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/relay/pkg/backend"
	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/credentials"
)

const authLongDesc string = `Store API credentials for cloud backends.

Credentials are stored in credentials.toml in the .relay/ directory. When
relay serve builds the backend cascade, a backend without an api_key in
config.toml uses the provider's environment variable first and the stored
credential second.

Supported providers: openai, anthropic, gemini

Examples:
  relay auth openai              Prompt for OpenAI API key
  relay auth gemini              Prompt for Gemini API key
  relay auth --list              Show where each provider's key comes from
  relay auth --remove openai     Remove stored OpenAI credentials
  echo $KEY | relay auth openai  Pipe API key from stdin`

const authShortDesc string = "Store API credentials for cloud backends"

// keyPrefixes are the prefixes keys issued by each provider start with. A
// key without one is stored anyway, with a warning.
var keyPrefixes = map[string]string{
	backend.ProviderOpenAI:    "sk-",
	backend.ProviderAnthropic: "sk-ant-",
	backend.ProviderGemini:    "AIza",
}

type authCommander struct {
	listFlag   bool
	removeFlag string

	out io.Writer
	in  io.Reader
	mgr *credentials.Manager
}

func NewAuthCmd() *cobra.Command {
	cmder := &authCommander{}

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			mgr, err := credentials.NewManager(configDir)
			if err != nil {
				return fmt.Errorf("loading credentials: %w", err)
			}
			cmder.mgr = mgr
			cmder.out = cmd.OutOrStdout()
			cmder.in = cmd.InOrStdin()
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			switch {
			case cmder.listFlag:
				return cmder.list()
			case cmder.removeFlag != "":
				return cmder.remove(cmder.removeFlag)
			case len(args) == 0:
				return fmt.Errorf("provider argument required\n\nSupported providers: %s",
					strings.Join(credentials.SupportedProviders(), ", "))
			default:
				return cmder.store(args[0])
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&cmder.listFlag, "list", false, "Show where each provider's key comes from")
	cmd.Flags().StringVar(&cmder.removeFlag, "remove", "", "Remove stored credentials for a provider")

	return cmd
}

func (c *authCommander) store(provider string) error {
	provider = normalize(provider)
	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s",
			provider, strings.Join(credentials.SupportedProviders(), ", "))
	}

	apiKey, err := c.readAPIKey(provider)
	if err != nil {
		return err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	if prefix := keyPrefixes[provider]; !strings.HasPrefix(apiKey, prefix) {
		fmt.Fprintf(c.out, "\n  %s\n", cliui.WarnStyle.Render(
			fmt.Sprintf("%s keys usually start with %q; storing it anyway", provider, prefix)))
	}

	if err := c.mgr.SetKey(provider, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(provider),
		cliui.DimStyle.Render("("+credentials.EnvVarForProvider(provider)+" takes precedence when set)"),
	)
	return nil
}

func (c *authCommander) list() error {
	out := c.out

	providers := credentials.SupportedProviders()
	keys := make([]credentials.Key, len(providers))
	found := false
	var err error
	for i, p := range providers {
		keys[i], err = c.mgr.Resolve(p, "")
		if err != nil {
			return err
		}
		found = found || keys[i].Source != credentials.SourceNone
	}

	if !found {
		fmt.Fprintf(out, "\n  %s No credentials found.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Use 'relay auth <provider>' to store credentials.\n")
		fmt.Fprintf(out, "  Supported providers: %s\n\n", strings.Join(providers, ", "))
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.StepStyle.Render("Credentials"))
	for i, p := range providers {
		envVar := credentials.EnvVarForProvider(p)
		mark, note := cliui.SuccessMark, ""
		switch keys[i].Source {
		case credentials.SourceEnv:
			note = "from " + envVar
		case credentials.SourceStored:
			note = "stored, " + envVar + " overrides when set"
		default:
			mark, note = cliui.DimStyle.Render("●"), "not set"
		}
		fmt.Fprintf(out, "  %s  %s  %s\n", mark, cliui.NameStyle.Render(p), cliui.DimStyle.Render(note))
	}
	fmt.Fprintln(out)

	return nil
}

func (c *authCommander) remove(provider string) error {
	provider = normalize(provider)

	stored, err := c.mgr.GetKey(provider)
	if err != nil {
		return err
	}
	if stored == "" {
		fmt.Fprintf(c.out, "\n  %s No stored %s credentials.\n\n", cliui.DimStyle.Render("●"), provider)
		return nil
	}

	if err := c.mgr.RemoveKey(provider); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(provider))
	return nil
}

// readAPIKey prompts without echo on a terminal and otherwise reads the
// first line of input.
func (c *authCommander) readAPIKey(provider string) (string, error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(c.out, "Enter API key for %s (%s): ", provider, credentials.EnvVarForProvider(provider))
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(key), nil
	}

	scanner := bufio.NewScanner(c.in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
