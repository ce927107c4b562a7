/*
Package cache wires the optimization engine to real storage.

The Manager owns a value store, a metadata store and the decision engine.
Application reads and writes flow through it so every cache event reaches
the engine, and periodic maintenance passes execute the engine's
decisions against the backends.

	┌─────────────────────────────────────────────┐
	│              Application                    │
	└──────────────────────┬──────────────────────┘
	                       │ Get / Set / Remove / Prefetch
	┌──────────────────────▼──────────────────────┐
	│               cache.Manager                 │  ← This Package
	│   records events, executes decisions        │
	└───────┬──────────────┬──────────────┬───────┘
	        │              │              │
	┌───────▼──────┐ ┌─────▼───────┐ ┌────▼────────┐
	│ types.Store  │ │ Metadata    │ │ optimizer   │
	│ (Redis / S3) │ │ Store       │ │ .Engine     │
	└──────────────┘ └─────────────┘ └─────────────┘

Maintenance is pull-based: Maintain loads a metadata snapshot, calls
Optimize, and applies the returned evictions and TTL refreshes with
retry. Start runs Maintain on a fixed interval until Stop or context
cancellation. The engine itself performs no I/O, so a failed backend
operation never corrupts its tracking state; the item is retried on the
next pass.
*/
package cache
