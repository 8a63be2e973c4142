package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// CliOptions abstracts configuration options for reading parameters from the
// command line.
type CliOptions interface {
	// Flags returns the options grouped into named flag sets.
	Flags() cliflag.NamedFlagSets

	// Validate checks the options after flags and config have been applied.
	Validate() error
}

// NamedFlagSetOptions is a CliOptions that can also fill in derived defaults
// once all sources have been read.
type NamedFlagSetOptions interface {
	CliOptions

	// Complete fills in fields that depend on other fields.
	Complete() error
}
