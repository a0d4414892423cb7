// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/clock"
	"github.com/bureau-foundation/swarmhash/lib/pipeline"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// session holds the store and postage state for one command run.
// Stamps issued during the run are written back by saveStamps.
type session struct {
	env      *environment
	store    chunkstore.Store
	issuer   *postage.BucketIssuer
	stamps   *postage.MemoryStampStore
	stamper  *postage.BatchStamper
	registry *prometheus.Registry
	metrics  *pipeline.Metrics
}

func openSession(env *environment) (*session, error) {
	cfg := env.config
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	store, err := cfg.OpenStore(env.logger)
	if err != nil {
		return nil, fmt.Errorf("opening chunk store: %w", err)
	}
	issuer, err := cfg.NewIssuer()
	if err != nil {
		return nil, err
	}

	stamps := postage.NewMemoryStampStore()
	if err := loadStamps(cfg.Postage.StampsFile, stamps, issuer); err != nil {
		return nil, err
	}
	env.logger.Debug("opened session",
		"store", cfg.Store.Path,
		"replicas", len(cfg.Store.Replicas),
		"stamps", stamps.Len(),
	)

	registry := prometheus.NewRegistry()
	return &session{
		env:      env,
		store:    store,
		issuer:   issuer,
		stamps:   stamps,
		stamper:  postage.NewBatchStamper(issuer, stamps, clock.Real()),
		registry: registry,
		metrics:  pipeline.NewMetrics(registry),
	}, nil
}

// loadStamps reads a stamp snapshot, if one exists, and replays the
// stamps of the configured batch into issuer.
func loadStamps(path string, stamps *postage.MemoryStampStore, issuer *postage.BucketIssuer) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening stamps: %w", err)
	}
	defer file.Close()

	if err := stamps.Load(file); err != nil {
		return fmt.Errorf("loading stamps from %s: %w", path, err)
	}

	var observeErr error
	stamps.Range(func(_ swarm.Hash, stamp *postage.Stamp) bool {
		if stamp.BatchID != issuer.BatchID() {
			return true
		}
		observeErr = issuer.Observe(stamp)
		return observeErr == nil
	})
	if observeErr != nil {
		return fmt.Errorf("restoring bucket counters from %s: %w", path, observeErr)
	}
	return nil
}

// saveStamps writes the stamp snapshot atomically: to a temporary file
// in the same directory, then renamed over the old snapshot.
func (s *session) saveStamps() error {
	path := s.env.config.Postage.StampsFile
	temporary, err := os.CreateTemp(filepath.Dir(path), ".stamps-*")
	if err != nil {
		return fmt.Errorf("creating temporary stamps file: %w", err)
	}
	success := false
	defer func() {
		if !success {
			temporary.Close()
			os.Remove(temporary.Name())
		}
	}()

	if err := s.stamps.Save(temporary); err != nil {
		return err
	}
	if err := temporary.Sync(); err != nil {
		return fmt.Errorf("syncing stamps: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing stamps: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("renaming stamps into place: %w", err)
	}
	success = true
	return nil
}

// pipelineOptions returns options for one pipeline run. Read-only runs
// neither store nor stamp.
func (s *session) pipelineOptions(readOnly bool, compactLevel uint16) (pipeline.Options, error) {
	options, err := s.env.config.PipelineOptions(s.store, s.stamper, s.env.logger)
	if err != nil {
		return pipeline.Options{}, err
	}
	options.CompactLevel = compactLevel
	options.ReadOnly = readOnly
	options.Metrics = s.metrics
	return options, nil
}

// writeMetrics writes the run's pipeline counters in the Prometheus
// text format, for node exporter's textfile collector.
func (s *session) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
