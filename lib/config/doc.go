// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for swarmhash.
//
// Configuration is loaded from a single file specified by either the
// SWARMHASH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. Files ending in .json or .jsonc are
// parsed as JSON with comments and trailing commas; everything else is
// YAML.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production without its own section
// stores chunk records zstd-compressed.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SWARMHASH_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Store, Pipeline, Postage, Manifest
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.OpenStore], [Config.NewIssuer], [Config.PipelineOptions]
//     -- build the collaborators a pipeline run needs
package config
