// Package types defines the public interfaces shared across the pulse
// library: structured logging and metrics collection.
//
// Keeping these in a leaf package lets both the root package and the
// pluggable subpackages (monitor, export, timesource) depend on them
// without import cycles.
package types
