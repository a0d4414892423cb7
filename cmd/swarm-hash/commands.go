// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/manifest"
	"github.com/bureau-foundation/swarmhash/lib/pipeline"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// parseFlags parses a subcommand's flags and checks the positional
// argument count is within [minArgs, maxArgs].
func parseFlags(env *environment, flagSet *pflag.FlagSet, args []string, usage string, minArgs, maxArgs int) ([]string, error) {
	flagSet.SetOutput(env.stderr)
	flagSet.Usage = func() {
		fmt.Fprintf(env.stderr, "Usage: swarm-hash %s\n\nFlags:\n", usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	positional := flagSet.Args()
	if len(positional) < minArgs || len(positional) > maxArgs {
		flagSet.Usage()
		return nil, fmt.Errorf("%s: wrong number of arguments", flagSet.Name())
	}
	return positional, nil
}

func runHash(ctx context.Context, env *environment, args []string) error {
	var readOnly bool
	var compactLevel uint16
	var metricsFile string

	flagSet := pflag.NewFlagSet("hash", pflag.ContinueOnError)
	flagSet.BoolVar(&readOnly, "read-only", false, "compute the reference without storing chunks")
	flagSet.Uint16Var(&compactLevel, "compact-level", env.config.Pipeline.CompactLevel, "encryption keys tried per chunk to even out postage buckets (0 disables)")
	flagSet.StringVar(&metricsFile, "metrics-file", "", "write pipeline counters to this file in Prometheus text format")
	positional, err := parseFlags(env, flagSet, args, "hash [flags] FILE|-", 1, 1)
	if err != nil {
		return err
	}

	input := env.stdin
	if positional[0] != "-" {
		file, err := os.Open(positional[0])
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	sess, err := openSession(env)
	if err != nil {
		return err
	}
	reference, err := sess.hash(ctx, input, readOnly, compactLevel)
	if err != nil {
		return err
	}
	if !readOnly {
		if err := sess.saveStamps(); err != nil {
			return err
		}
	}
	if err := sess.writeMetrics(metricsFile); err != nil {
		return err
	}

	fmt.Fprintln(env.stdout, reference.String())
	return nil
}

// hash runs one pipeline over r.
func (s *session) hash(ctx context.Context, r io.Reader, readOnly bool, compactLevel uint16) (swarm.ChunkReference, error) {
	options, err := s.pipelineOptions(readOnly, compactLevel)
	if err != nil {
		return swarm.ChunkReference{}, err
	}
	p, err := pipeline.New(options)
	if err != nil {
		return swarm.ChunkReference{}, err
	}
	defer p.Close()

	reference, err := p.HashReader(ctx, r)
	if err != nil {
		return swarm.ChunkReference{}, err
	}
	s.env.logger.Info("hashed stream",
		"reference", reference.String(),
		"intermediate_chunks", p.IntermediateChunks(),
		"peak_concurrency", p.PeakConcurrency(),
		"missed_optimistic_hashing", p.MissedOptimisticHashing(),
		"bucket_utilization", s.issuer.Utilization(),
		"read_only", readOnly,
	)
	return reference, nil
}

func runManifest(ctx context.Context, env *environment, args []string) error {
	var encrypted bool
	var indexDocument string
	var metricsFile string

	flagSet := pflag.NewFlagSet("manifest", pflag.ContinueOnError)
	flagSet.BoolVar(&encrypted, "encrypted", env.config.Manifest.Encrypted, "obfuscate manifest nodes with a random key")
	flagSet.StringVar(&indexDocument, "index", env.config.Manifest.IndexDocument, "file served for the empty path, if present")
	flagSet.StringVar(&metricsFile, "metrics-file", "", "write pipeline counters to this file in Prometheus text format")
	positional, err := parseFlags(env, flagSet, args, "manifest [flags] DIR", 1, 1)
	if err != nil {
		return err
	}
	root := positional[0]

	sess, err := openSession(env)
	if err != nil {
		return err
	}
	if env.config.Pipeline.CompactLevel > 0 {
		env.logger.Info("compaction disabled for manifest entries",
			"configured_compact_level", env.config.Pipeline.CompactLevel)
	}

	m, err := manifest.NewManifest(encrypted)
	if err != nil {
		return err
	}
	hasIndex := false
	files := 0
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)

		reference, err := sess.hashFile(ctx, path)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", relative, err)
		}
		metadata := map[string]string{"Filename": entry.Name()}
		if contentType := mime.TypeByExtension(filepath.Ext(path)); contentType != "" {
			metadata["Content-Type"] = contentType
		}
		if err := m.Add(relative, reference.Hash, metadata); err != nil {
			return err
		}
		hasIndex = hasIndex || relative == indexDocument
		files++
		return nil
	})
	if err != nil {
		return err
	}
	if hasIndex {
		if err := m.SetIndexDocument(indexDocument); err != nil {
			return err
		}
	}

	options, err := sess.pipelineOptions(false, 0)
	if err != nil {
		return err
	}
	hash, err := m.Save(ctx, manifest.PipelineBuilder(options))
	if err != nil {
		return err
	}
	if err := sess.saveStamps(); err != nil {
		return err
	}
	if err := sess.writeMetrics(metricsFile); err != nil {
		return err
	}

	env.logger.Info("saved manifest", "hash", hash.String(), "files", files, "index", hasIndex)
	fmt.Fprintln(env.stdout, hash.String())
	return nil
}

// hashFile stores one file with a plain reference, as manifest entries
// require.
func (s *session) hashFile(ctx context.Context, path string) (swarm.ChunkReference, error) {
	file, err := os.Open(path)
	if err != nil {
		return swarm.ChunkReference{}, err
	}
	defer file.Close()
	return s.hash(ctx, file, false, 0)
}

// openReadStore opens the configured store for commands that only
// read.
func openReadStore(env *environment) (chunkstore.Store, error) {
	store, err := env.config.OpenStore(env.logger)
	if err != nil {
		return nil, fmt.Errorf("opening chunk store: %w", err)
	}
	return store, nil
}

func runResolve(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	positional, err := parseFlags(env, flagSet, args, "resolve MANIFEST_HASH PATH", 2, 2)
	if err != nil {
		return err
	}
	hash, err := swarm.ParseHash(positional[0])
	if err != nil {
		return err
	}
	store, err := openReadStore(env)
	if err != nil {
		return err
	}

	entry, err := manifest.NewReferencedNode(store, hash).ResolveHash(ctx, positional[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, entry.String())
	return nil
}

func runList(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("ls", pflag.ContinueOnError)
	positional, err := parseFlags(env, flagSet, args, "ls MANIFEST_HASH", 1, 1)
	if err != nil {
		return err
	}
	hash, err := swarm.ParseHash(positional[0])
	if err != nil {
		return err
	}
	store, err := openReadStore(env)
	if err != nil {
		return err
	}

	return manifest.NewReferencedNode(store, hash).Walk(ctx, func(path string, entry swarm.Hash, _ map[string]string) error {
		_, err := fmt.Fprintf(env.stdout, "%s\t%s\n", entry, path)
		return err
	})
}

func runCat(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("cat", pflag.ContinueOnError)
	positional, err := parseFlags(env, flagSet, args, "cat REFERENCE [PATH]", 1, 2)
	if err != nil {
		return err
	}
	reference, err := swarm.ParseChunkReference(positional[0])
	if err != nil {
		return err
	}
	store, err := openReadStore(env)
	if err != nil {
		return err
	}

	if len(positional) == 2 {
		if reference.Key != nil {
			return errors.New("manifest references carry no key")
		}
		entry, err := manifest.NewReferencedNode(store, reference.Hash).ResolveHash(ctx, positional[1])
		if err != nil {
			return err
		}
		reference = swarm.ChunkReference{Hash: entry}
	}

	written, err := pipeline.NewJoiner(store).Join(ctx, reference, env.stdout)
	if err != nil {
		return err
	}
	env.logger.Debug("wrote content", "reference", reference.String(), "bytes", written)
	return nil
}
