// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// swarm-hash splits files into Swarm chunks, stores them in a local
// chunk store, builds mantaray manifests over directories, and reads
// content back by reference or manifest path.
//
// Usage:
//
//	swarm-hash [--config FILE] [--log-level LEVEL] COMMAND [flags] ARGS
//
// Commands:
//
//	hash FILE          hash a file (or - for stdin) and print its reference
//	manifest DIR       hash every file under DIR and print the manifest hash
//	resolve HASH PATH  print the entry hash a manifest stores for PATH
//	ls HASH            list every path in a manifest
//	cat REF [PATH]     write the content behind a reference, or behind
//	                   PATH in the manifest REF, to stdout
//
// The configuration file is named by --config or SWARMHASH_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/swarmhash/lib/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "swarm-hash: %v\n", err)
		os.Exit(1)
	}
}

// command is one subcommand. It parses its own flags from args.
type command struct {
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"hash":     {"hash a file and print its reference", runHash},
	"manifest": {"hash a directory into a manifest", runManifest},
	"resolve":  {"resolve a path in a manifest", runResolve},
	"ls":       {"list the paths of a manifest", runList},
	"cat":      {"write referenced content to stdout", runCat},
}

// environment carries what every command needs: the loaded config, a
// logger, and the process streams.
type environment struct {
	config *config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var configPath string
	var logLevel string

	flagSet := pflag.NewFlagSet("swarm-hash", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $SWARMHASH_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	remaining := flagSet.Args()
	if len(remaining) == 0 {
		printUsage(stderr, flagSet)
		return errors.New("no command given")
	}
	cmd, ok := commands[remaining[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", remaining[0])
	}

	logger, err := newLogger(stderr, logLevel)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	env := &environment{config: cfg, logger: logger, stdin: stdin, stdout: stdout, stderr: stderr}
	return cmd.run(ctx, env, remaining[1:])
}

// newLogger builds the JSON logger on stderr.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing --log-level: %w", err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})), nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `swarm-hash: Swarm chunking, manifests, and local chunk storage.

Usage:
  swarm-hash [flags] COMMAND [command flags] ARGS

Commands:
`)
	for _, name := range []string{"hash", "manifest", "resolve", "ls", "cat"} {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nFlags:\n")
	flagSet.PrintDefaults()
}
