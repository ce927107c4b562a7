/*
Package types provides the core interfaces, data structures, and type definitions for CacheTune.

This package serves as the foundation for the system, defining the contracts
between the optimizer core and its host, and the data structures shared across
the codebase.

# Architecture Overview

CacheTune follows a layered architecture with well-defined interfaces between
components:

	┌─────────────────────────────────────────────┐
	│                 Host Application            │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            Cache Manager                    │
	│           (internal/cache)                  │
	└─────────────────────────────────────────────┘
	       │            │             │
	┌──────┴─────┐ ┌────┴──────┐ ┌────┴──────┐
	│ Optimizer  │ │   Store   │ │  Metrics  │
	│ (engine)   │ │ (KV+meta) │ │           │
	└────────────┘ └───────────┘ └───────────┘

# Core Interfaces

Optimizer Interface:
The adaptive decision engine. Records creation/access/miss events, produces
eviction and TTL-adjustment decisions over a caller-supplied metadata
snapshot, and answers prefetch and segment queries. Performs no I/O.

Store Interface:
Abstracts the persistent key-value store (Redis, S3) that the cache manager
drives with the optimizer's decisions.

MetadataStore Interface:
Persists per-key CacheItemMetadata across restarts so optimization decisions
survive process lifetimes.

Clock Interface:
Injectable time source so tests can drive the engine deterministically.

# Data Structures

CacheItemMetadata carries the per-item facts the optimizer scores on: size,
access count, timestamps, TTL, data type, and priority. Snapshot is the
caller-owned collection of metadata handed to Optimize. OptimizationResult
is the engine's immutable answer: items to remove, TTL changes, freed space,
and the strategy that produced them.
*/
package types
