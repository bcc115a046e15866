// Package manifest handles parsing and validation of agent and agent group
// definitions. Documents are checked against the embedded JSON schemas in
// schema/ and then against cross-field rules the schemas cannot express:
// argument types must be known to the type registry, defaults must decode,
// and group members must agree with the group's argument declarations.
package manifest
