package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opengovern/dogapi"
	"github.com/opengovern/dogapi/logger"
)

type requestFlags struct {
	params   []string
	data     string
	noAppKey bool
	strict   bool
}

func newRequestCmd(a *app) *cobra.Command {
	var f requestFlags

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send one request and print the normalized response",
		Example: `  dogapi request GET /api/v1/validate
  dogapi request POST /api/v1/series -d '{"series":[]}'
  dogapi request GET /api/v1/events -p start=1700000000 -p end=1700003600`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.runRequest(cmd, args[0], args[1], f)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "JSON request body")
	cmd.Flags().BoolVar(&f.noAppKey, "no-app-key", false, "do not send the application key")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "fail on errors instead of printing the suppressed response")
	return cmd
}

func (a *app) runRequest(cmd *cobra.Command, method, path string, f requestFlags) error {
	params, err := parseParams(f.params)
	if err != nil {
		return err
	}

	req := &dogapi.NormalizedRequest{
		Method:     method,
		URL:        path,
		Params:     params,
		OmitAppKey: f.noAppKey,
	}
	if f.data != "" {
		var body any
		if err := json.Unmarshal([]byte(f.data), &body); err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
		req.Body = body
		req.SendJSON = true
	}

	opts := a.cfg.Options(a.log)
	if f.strict {
		opts = append(opts, dogapi.WithSilent(false))
	}
	svc := dogapi.NewAPIService(a.cfg.APIKey, a.cfg.ApplicationKey, opts...)

	if proxy, err := dogapi.ProxyFromEnvironment(); err == nil && proxy.Enabled() {
		logger.Notice(a.log, "using proxy", "host", proxy.Host(), "port", proxy.Port())
	}

	resp, err := svc.Request(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printResponse(cmd, resp)
}

func parseParams(raw []string) (dogapi.Params, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(dogapi.Params, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}

func printResponse(cmd *cobra.Command, resp *dogapi.NormalizedResponse) error {
	body, err := json.MarshalIndent(resp.Body(), "", "  ")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %d\n", resp.StatusCode)
	for _, h := range resp.Headers {
		fmt.Fprintf(out, "%s: %s\n", h.Name, h.Value)
	}
	fmt.Fprintf(out, "\n%s\n", body)
	return nil
}
