package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/gateway"
	"github.com/soyeahso/scoutbot/internal/version"
)

func newStatusCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the configuration summary and query a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scoutbot %s\n\n", version.Info())
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			printSummary(out, cfg)

			if !cfg.Gateway.Enabled && url == "" {
				return nil
			}
			if url == "" {
				url = fmt.Sprintf("http://127.0.0.1:%d", cfg.Gateway.Port)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			st, err := fetchStatus(ctx, url, cfg.Gateway.Auth.Token)
			if err != nil {
				fmt.Fprintf(out, "\nGateway: unreachable: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "\nGateway: %s up %s, %d session(s), %d client(s) from %d web user(s)\n",
				st.Version, st.Uptime, st.Sessions, st.Clients, st.WebUsers)
			for _, ch := range st.Channels {
				fmt.Fprintf(out, "  %-8s running=%v connected=%v", ch.ChannelID, ch.Running, ch.Connected)
				if ch.LastError != "" {
					fmt.Fprintf(out, " error=%s", ch.LastError)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "gateway base URL (default from config)")
	return cmd
}

func printSummary(out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "Gateway: enabled=%v port=%d bind=%s\n", cfg.Gateway.Enabled, cfg.Gateway.Port, cfg.Gateway.Bind)
	if irc := cfg.Channels.IRC; irc != nil {
		fmt.Fprintf(out, "IRC:     server=%s nick=%s tls=%v\n", irc.Server, irc.Nick, irc.UseTLS)
	} else {
		fmt.Fprintln(out, "IRC:     (not configured)")
	}
	fmt.Fprintf(out, "Models:  default=%s backends=%d\n", cfg.Models.Default, len(cfg.Models.Backends))
	fmt.Fprintf(out, "Auth:    %s (%d user(s), %d admin(s))\n", cfg.Auth.Directory, len(cfg.Auth.Users), len(cfg.Dialogue.Admins))
	fmt.Fprintf(out, "Prompts: %s\n", cfg.Prompts.Store)
	fmt.Fprintf(out, "Mail:    %s\n", cfg.Mail.Driver)

	if issues := config.Validate(&cfg); len(issues) > 0 {
		fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
}

// fetchStatus calls GET /status on a running gateway.
func fetchStatus(ctx context.Context, baseURL, token string) (gateway.StatusResponse, error) {
	var st gateway.StatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		return st, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}
