/*
Package tracing wraps go.opentelemetry.io/otel/trace for setting and retrieving tracers in a context.Context.

Tracers travel in the context instead of package globals, so the server and the CLI can each decide how spans are exported.
*/
package tracing
