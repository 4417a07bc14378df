package sqltranslatorctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// exitError carries a non-usage failure; anything else returned by cobra is
// treated as a usage error.
type exitError struct {
	err error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

type runner struct {
	opts    Options
	baseURL string
	apiKey  string
	timeout time.Duration
}

// Run executes one CLI invocation and returns the process exit code:
// 0 on success, 1 on request failure, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	if defaults.Stdout == nil {
		defaults.Stdout = io.Discard
	}
	if defaults.Stderr == nil {
		defaults.Stderr = io.Discard
	}
	if defaults.Stdin == nil {
		defaults.Stdin = strings.NewReader("")
	}

	if args == nil {
		args = []string{}
	}

	r := &runner{opts: defaults}
	root := r.rootCommand()
	root.SetArgs(args)
	root.SetIn(defaults.Stdin)
	root.SetOut(defaults.Stdout)
	root.SetErr(defaults.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var failure *exitError
	if errors.As(err, &failure) {
		_, _ = fmt.Fprintln(defaults.Stderr, failure.Error())
		return 1
	}
	_, _ = fmt.Fprintf(defaults.Stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(defaults.Stderr, root.UsageString())
	return 2
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sqltranslatorctl",
		Short:         "Client for the SQL translator API",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(*cobra.Command, []string) error {
			return errors.New("missing command")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&r.baseURL, "base-url", firstNonEmpty(r.opts.BaseURL, "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&r.apiKey, "api-key", r.opts.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&r.timeout, "timeout", durationOr(r.opts.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		r.textCommand("translate", "Translate a natural-language question into SQL", "/api/translate"),
		r.textCommand("explain", "Explain a SQL statement in plain language", "/api/sql-to-human"),
		r.statusCommand("health", "GET /v1/health", "/v1/health"),
		r.statusCommand("ready", "GET /v1/ready", "/v1/ready"),
		r.reportCommand(),
	)
	return root
}

func (r *runner) textCommand(name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <text|->",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return &exitError{err: fmt.Errorf("read input: %w", err)}
			}
			body, err := json.Marshal(map[string]string{"inputText": text})
			if err != nil {
				return &exitError{err: err}
			}
			raw, err := r.do(cmd.Context(), http.MethodPost, path, body)
			if err != nil {
				return err
			}
			var decoded struct {
				OutputText string `json:"outputText"`
			}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return &exitError{err: fmt.Errorf("decode response: %w", err)}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), decoded.OutputText)
			return nil
		},
	}
}

func (r *runner) statusCommand(name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := r.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printBody(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}

func (r *runner) reportCommand() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "GET /v1/history/report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/v1/history/report"
			if since = strings.TrimSpace(since); since != "" {
				if _, err := time.Parse(time.RFC3339, since); err != nil {
					return fmt.Errorf("--since must be RFC3339: %w", err)
				}
				path += "?" + url.Values{"since": {since}}.Encode()
			}
			raw, err := r.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printBody(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "report on archives created at or after this RFC3339 time")
	return cmd
}

func (r *runner) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	client := r.opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: r.timeout}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	endpoint := strings.TrimRight(r.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &exitError{err: fmt.Errorf("request failed: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(r.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &exitError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &exitError{err: fmt.Errorf("request failed: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, &exitError{err: fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}
	return raw, nil
}

func readInput(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func printBody(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
