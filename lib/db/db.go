package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplTrie  Implementation = "trie"
	ImplMaple Implementation = "maple"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet          Feature = 1 << iota // Support for Set operations
	FeatureGet                              // Support for Get operations
	FeatureHas                              // Support for Has operations
	FeatureDelete                           // Support for Delete operations
	FeatureRange                            // Support for Range operations
	FeatureOrderedRange                     // Range visits keys in ascending order
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureHas:
		return "Has"
	case FeatureDelete:
		return "Delete"
	case FeatureRange:
		return "Range"
	case FeatureOrderedRange:
		return "OrderedRange"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Count             int            `json:"count"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for databases mapping uint64 keys to uint64 values.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates the entry for key. If the key already exists, the
	// old value is overwritten. An error means the entry could not be stored
	// and the database is unchanged.
	Set(key, value uint64) (err error)

	// Delete removes the entry for key and returns the value it held.
	Delete(key uint64) (value uint64, loaded bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key uint64) (value uint64, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key uint64) (loaded bool)

	// Range calls fn for every entry until fn returns false. Implementations
	// supporting FeatureOrderedRange visit keys in ascending order. fn must not
	// call back into the database, reads included: engines may hold locks for
	// the whole traversal.
	Range(fn func(key, value uint64) bool)

	// Len returns the number of entries.
	Len() (n int)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close releases all memory held by the database.
	Close() (err error)
}

// MetricsWriter is implemented by databases that export operational metrics
// in Prometheus text format.
type MetricsWriter interface {
	WritePrometheus(w io.Writer)
}
