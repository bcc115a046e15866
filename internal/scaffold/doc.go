// Package scaffold generates new agent and agent group definitions from
// embedded templates. It powers the "agentscan create" command. Generated
// definitions are validated before they are reported back.
package scaffold
