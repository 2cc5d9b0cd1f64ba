package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"context-capture/src/messages"
	"context-capture/src/singleinstance"
)

type stressOptions struct {
	n        int
	mode     string
	deadline time.Duration
}

// tally counts client outcomes. Fields are updated atomically.
type tally struct {
	ok, busy, notRunning, errs int32
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Stress test run-once delegation to a resident instance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.mode != "std" && opts.mode != "clip" && opts.mode != "msg" {
				return fmt.Errorf("unknown mode %q (want std, clip or msg)", opts.mode)
			}
			t := runWithOptions(*opts, singleinstance.NewClient)
			report(cmd.OutOrStdout(), *opts, t)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.mode, "mode", "std", "std|clip|msg: capture to stdout, capture to clipboard, or GET_SETTINGS over MESSAGE mode")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func runWithOptions(opts stressOptions, newClient func() singleinstance.Client) *tally {
	t := &tally{}
	var wg sync.WaitGroup
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			t.record(clientOnce(ctx, newClient(), opts.mode))
		}()
	}
	wg.Wait()
	return t
}

func clientOnce(ctx context.Context, client singleinstance.Client, mode string) (bool, error) {
	if mode == "msg" {
		raw, err := messages.Encode(messages.GetSettings{})
		if err != nil {
			return false, err
		}
		delegated, _, err := client.SendMessage(ctx, raw)
		return delegated, err
	}
	delegated, _, err := client.TryRunOnce(ctx, mode == "std")
	return delegated, err
}

func (t *tally) record(delegated bool, err error) {
	switch {
	case err != nil && isBusy(err):
		atomic.AddInt32(&t.busy, 1)
	case err != nil:
		atomic.AddInt32(&t.errs, 1)
	case !delegated:
		atomic.AddInt32(&t.notRunning, 1)
	default:
		atomic.AddInt32(&t.ok, 1)
	}
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "already in progress") || strings.Contains(msg, "superseded")
}

func report(w io.Writer, opts stressOptions, t *tally) {
	fmt.Fprintf(w, "launched=%d ok=%d busy=%d not_running=%d err=%d\n",
		opts.n, atomic.LoadInt32(&t.ok), atomic.LoadInt32(&t.busy), atomic.LoadInt32(&t.notRunning), atomic.LoadInt32(&t.errs))
}
