// The plumbing packages connect fricon clients to a running engine.
// server answers RPCs on the workspace socket; client dials it.
// The cmd/fricon directory is the CLI application built on top of them.
//
// No packages outside of cmd/ are expected to import plumbing packages,
// apart from tests.
package plumbing
