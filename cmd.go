package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/initmon/daemon"
	"git.unix.lgbt/diamondburned/initmon/initmon"
	"git.unix.lgbt/diamondburned/initmon/initmon/exec"
	"git.unix.lgbt/diamondburned/initmon/initmon/journal"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	defaultLogFile     = "/tmp/initmon.log"
	defaultJournalFile = "/tmp/initmon.journal"
)

type runOptions struct {
	logFile     string
	journalFile string
	maxChildren int
	foreground  bool
	watch       bool
	wait        time.Duration
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:   "initmon [flags] <config>",
		Short: "Keep a fixed set of programs running",
		Long: "initmon starts every program listed in the config file with its standard\n" +
			"input and output redirected, and restarts them when they exit. SIGHUP\n" +
			"reloads the config and restarts everything; SIGTERM stops everything.\n\n" +
			"Each config line is: command [args...] input_file output_file",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are fine; only runtime errors from here on.
			cmd.SilenceUsage = true
			return run(cmd.Context(), args[0], opts)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.logFile, "log", "l", defaultLogFile, "plain text log file path")
	flags.StringVarP(&opts.journalFile, "journal", "j", defaultJournalFile, "JSON journal file path, empty to disable")
	flags.IntVarP(&opts.maxChildren, "max-children", "n", initmon.MaxChildren, "maximum number of children")
	flags.BoolVarP(&opts.foreground, "foreground", "f", false, "do not daemonize, also log to stderr")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "reload when the config file changes")
	flags.DurationVar(&opts.wait, "wait", 0, "wait this long for a previous instance to release the log and journal")

	root.AddCommand(newStatusCmd())
	root.AddCommand(newParseCmd())

	return root
}

func run(ctx context.Context, configFile string, opts runOptions) error {
	configFile, err := filepath.Abs(configFile)
	if err != nil {
		return errors.Wrap(err, "invalid config path")
	}

	// The daemon runs from /.
	for _, path := range []*string{&opts.logFile, &opts.journalFile} {
		if *path == "" {
			continue
		}
		if *path, err = filepath.Abs(*path); err != nil {
			return errors.Wrap(err, "invalid log path")
		}
	}

	if !opts.foreground {
		if err := daemon.Daemonize(); err != nil {
			return err
		}
	}

	logger, err := openLog(ctx, opts.logFile, opts.wait, journal.NewFileLockLogger, journal.NewFileLockLoggerWait)
	if err != nil {
		if errors.Is(err, journal.ErrLockedElsewhere) {
			return errors.New("initmon is already running with log " + opts.logFile)
		}
		return errors.Wrap(err, "failed to open log")
	}
	defer logger.Close()

	writers := []initmon.Journaler{logger}

	if opts.journalFile != "" {
		j, err := openLog(ctx, opts.journalFile, opts.wait, journal.NewFileLockJournaler, journal.NewFileLockJournalerWait)
		if err != nil {
			return errors.Wrap(err, "failed to open journal")
		}
		defer j.Close()

		writers = append(writers, j)
	}

	if opts.foreground {
		writers = append(writers, journal.NewHumanWriter(os.Stderr))
	}

	journaler := journal.MultiWriter(writers...)

	host, err := exec.NewHost(exec.HostOptions{Report: logger.File()})
	if err != nil {
		return errors.Wrap(err, "failed to create process host")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := initmon.NewSupervisor(configFile, opts.maxChildren, host, journaler)

	stop := initmon.NotifySignals(ctx, s)
	defer stop()

	if opts.watch {
		w := initmon.TryWatch(ctx, configFile, journaler)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-w.Events:
					if !s.Reload() {
						return
					}
				}
			}
		}()
	}

	return s.Run(ctx)
}

type (
	openFunc     func(path string) (*journal.FileLockJournaler, error)
	openWaitFunc func(ctx context.Context, path string) (*journal.FileLockJournaler, error)
)

// openLog opens a locked log file, waiting up to wait for the lock. A lock
// still held after the wait is reported as ErrLockedElsewhere.
func openLog(
	ctx context.Context, path string, wait time.Duration,
	open openFunc, openWait openWaitFunc) (*journal.FileLockJournaler, error) {

	if wait <= 0 {
		return open(path)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	f, err := openWait(ctx, path)
	if err != nil && ctx.Err() != nil {
		return nil, journal.ErrLockedElsewhere
	}
	return f, err
}

func newStatusCmd() *cobra.Command {
	var journalFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the children of the latest run from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := journal.ReadPreviousStateFromFile(journalFile)
			if err != nil {
				return errors.Wrap(err, "failed to read journal")
			}

			printStatus(cmd.OutOrStdout(), state)
			return nil
		},
	}

	cmd.Flags().StringVarP(&journalFile, "journal", "j", defaultJournalFile, "JSON journal file path")
	return cmd
}

func newParseCmd() *cobra.Command {
	var maxChildren int

	cmd := &cobra.Command{
		Use:   "parse <config>",
		Short: "Check a config file and print the children it describes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, warnings, err := initmon.LoadConfig(args[0], maxChildren)
			if err != nil {
				return err
			}

			for _, w := range warnings {
				log.Println("warning:", w)
			}

			out := cmd.OutOrStdout()
			for slot, spec := range specs {
				fmt.Fprintf(out, "%d\t%s\t< %s\t> %s\n", slot, strings.Join(spec.Args, " "), spec.Input, spec.Output)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&maxChildren, "max-children", "n", initmon.MaxChildren, "maximum number of children")
	return cmd
}
