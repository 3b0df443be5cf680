package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"taskloop/internal/app"
	"taskloop/internal/storage"
)

const stopTimeout = 15 * time.Second

func main() {
	var (
		cfgPath string
		history string
		limit   int
	)
	flag.StringVar(&cfgPath, "config", "./taskloop.yaml", "path to config (yaml or json)")
	flag.StringVar(&history, "history", "", "print recent runs of the named task (\"all\" for every task) and exit")
	flag.IntVar(&limit, "limit", 20, "max runs printed by -history")
	flag.Parse()

	if history != "" {
		if err := printHistory(cfgPath, history, limit); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	// Either a signal or a fatal component error ends the run.
	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if stopErr != nil {
		fmt.Fprintln(os.Stderr, "stop:", stopErr)
		os.Exit(1)
	}
}

func printHistory(cfgPath, name string, limit int) error {
	if name == "all" {
		name = ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs, err := app.ReadHistory(ctx, cfgPath, name, limit)
	if errors.Is(err, storage.ErrDisabled) {
		return errors.New("run history is disabled (set storage.driver in the config)")
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTASK\tPRIORITY\tTOOK\tSTATUS\tRUN")
	for _, r := range runs {
		status := "ok"
		if !r.OK {
			status = "failed: " + r.Error
			if r.Panicked {
				status = "panic: " + r.Error
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Task, r.Priority,
			r.Duration.Round(time.Millisecond), status, r.ID)
	}
	return w.Flush()
}
