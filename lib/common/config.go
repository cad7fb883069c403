package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Engine configuration struct
// --------------------------------------------------------------------------

// EngineConfig holds the parameters of a sharded trie engine.
type EngineConfig struct {
	// engine implementation (trie or maple)
	Engine string
	// number of independently locked shards
	NumShards int
	// initial advisory capacity of every shard
	ShardCapacity int
	// arena ceiling of every shard in bytes
	MaxShardBytes uint64
	// back shard arenas with anonymous memory mappings
	OffHeap bool

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *EngineConfig) String() string {
	sb, addSection, addField := newPrinter()

	addSection("Engine")
	addField("Implementation", c.Engine)
	addField("Shards", strconv.Itoa(c.NumShards))
	addField("Shard Capacity", strconv.Itoa(c.ShardCapacity))
	addField("Shard Ceiling", formatBytes(c.MaxShardBytes))
	addField("Off Heap", strconv.FormatBool(c.OffHeap))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Simulation configuration struct
// --------------------------------------------------------------------------

// SimConfig holds the parameters of a registry simulation run.
type SimConfig struct {
	// entities alive at the start of the run
	Entities int
	// attribute kinds with a payload
	Components int
	// payload size of every attribute kind in bytes
	ComponentSize int
	// attribute kinds without a payload
	Tags int
	// systems, each matching a random subset of kinds
	Systems int
	// number of world steps
	Steps int
	// fraction of entities deleted and respawned per step
	Churn float64
	// seed of the pseudo random generator (0 = random)
	Seed int64
	// forward lifecycle events to an observer
	Events bool

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *SimConfig) String() string {
	sb, addSection, addField := newPrinter()

	addSection("World")
	addField("Entities", strconv.Itoa(c.Entities))
	addField("Components", fmt.Sprintf("%d x %d bytes", c.Components, c.ComponentSize))
	addField("Tags", strconv.Itoa(c.Tags))
	addField("Systems", strconv.Itoa(c.Systems))

	addSection("Run")
	addField("Steps", strconv.Itoa(c.Steps))
	addField("Churn", fmt.Sprintf("%.1f%%", c.Churn*100))
	addField("Seed", strconv.FormatInt(c.Seed, 10))
	addField("Events", strconv.FormatBool(c.Events))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// newPrinter returns a builder and helper functions for consistent formatting
func newPrinter() (*strings.Builder, func(string), func(string, string)) {
	sb := &strings.Builder{}

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	return sb, addSection, addField
}

// formatBytes renders a byte count with a binary unit
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
