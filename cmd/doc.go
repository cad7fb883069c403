// Package cmd implements the nibble command-line interface. It offers tools
// to measure and verify the trie index and the engines and registry built on
// it.
//
// The package is organized into several subpackages:
//
//   - perf: Throughput benchmarks of the sharded engine
//   - check: Randomized verification against an ordered-set oracle
//   - sim: Entity registry simulation with step latency percentiles
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See nibble -help for a list of all commands.
package cmd
