// Package domain holds the dashboard event model, its sentinel errors and the
// interfaces the broadcaster exposes to ingest adapters.
package domain
