// Package cli defines the Cobra command tree for the agentscan CLI. Each file
// in this package builds one top-level command (validate, build, inspect,
// etc.). Command implementations delegate to internal packages for the work
// and only handle flag parsing, I/O formatting and logging setup.
package cli
