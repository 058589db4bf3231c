package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/authwire/internal/client"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Send an authenticated GET and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	cmd.Flags().String("method", http.MethodGet, "HTTP method")
	cmd.Flags().String("data", "", "JSON request body")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	method, _ := cmd.Flags().GetString("method")
	data, _ := cmd.Flags().GetString("data")

	var body any
	if data != "" {
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return fmt.Errorf("--data is not valid JSON: %w", err)
		}
	}

	return withStack(cmd, routeOf(args[0]), func(ctx context.Context, s *stack) error {
		var wg sync.WaitGroup
		defer wg.Wait()

		wctx, cancel := context.WithCancel(ctx)
		defer cancel()

		s.watch(wctx, &wg)

		resp, err := s.client.Do(ctx, strings.ToUpper(method), args[0], body)
		if err != nil {
			return err
		}

		return printBody(cmd, resp)
	})
}

func printBody(cmd *cobra.Command, resp *client.Response) error {
	w := cmd.OutOrStdout()

	if flagJSON || !json.Valid(resp.Body) {
		_, err := w.Write(resp.Body)
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, resp.Body, "", "  "); err != nil {
		return err
	}

	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)

	return err
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <path>",
		Short: "Fire N identical concurrent GETs and report how many reached the backend",
		Args:  cobra.ExactArgs(1),
		RunE:  runProbe,
	}

	cmd.Flags().IntP("count", "n", 10, "number of concurrent calls")

	return cmd
}

// probeReport is the JSON schema for `probe --json`.
type probeReport struct {
	Calls     int            `json:"calls"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Distinct  int            `json:"distinct_responses"`
	Errors    map[string]int `json:"errors,omitempty"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("count")
	if n < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", n)
	}

	return withStack(cmd, routeOf(args[0]), func(ctx context.Context, s *stack) error {
		report, err := probe(ctx, s.client, args[0], n)

		w := cmd.OutOrStdout()

		if flagJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")

			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}

			return err
		}

		fmt.Fprintf(w, "%d calls, %d succeeded, %d failed, %d distinct response(s) in %s\n",
			report.Calls, report.Succeeded, report.Failed, report.Distinct, report.Elapsed.Round(time.Millisecond))

		for msg, count := range report.Errors {
			fmt.Fprintf(w, "  %dx %s\n", count, msg)
		}

		return err
	})
}

// probe issues n concurrent identical GETs. Coalesced calls share one
// *client.Response, so the number of distinct pointers is the number of
// calls that reached the backend. A failure that ends the session cancels
// the calls still waiting and is returned alongside the report.
func probe(ctx context.Context, c *client.Client, path string, n int) (probeReport, error) {
	start := time.Now()

	var (
		mu       sync.Mutex
		distinct = map[*client.Response]struct{}{}
		errs     = map[string]int{}
		ok       int
	)

	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			resp, err := c.Do(gctx, http.MethodGet, path, nil)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs[friendlyError(err)]++

				if isSessionTerminal(err) {
					return err
				}

				return nil
			}

			ok++
			distinct[resp] = struct{}{}

			return nil
		})
	}

	err := g.Wait()

	report := probeReport{
		Calls:     n,
		Succeeded: ok,
		Failed:    n - ok,
		Distinct:  len(distinct),
		Elapsed:   time.Since(start),
	}

	if len(errs) > 0 {
		report.Errors = errs
	}

	return report, err
}

// routeOf strips the query from path; the CLI's current route is the path
// it is calling.
func routeOf(path string) string {
	route, _, _ := strings.Cut(path, "?")
	return route
}
