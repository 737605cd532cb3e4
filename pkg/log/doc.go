// Package log provides the gateway's structured logging, a thin
// wrapper around zerolog with one global Logger initialized once at
// process start and component-scoped child loggers for the resolver,
// proxy, CA, store, and admin API.
package log
