/*
Package config provides configuration management for cachetune with
multi-source support.

Configuration is resolved in precedence order:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (CACHETUNE_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration Files                 │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	│        (Compiled-in defaults)               │
	└─────────────────────────────────────────────┘

The cache section carries the optimization engine settings and maps onto
optimizer.Config via OptimizerConfig, parsing human-readable sizes such as
"512MB". The store section selects the redis or s3 backend and the metadata
side-store location. Validation runs the engine's own config validation so
range errors surface before any component starts.

Example YAML:

	global:
	  log_level: INFO
	  log_format: json
	cache:
	  strategy: adaptive
	  max_size: 2GB
	  max_count: 500000
	store:
	  backend: redis
	  redis:
	    addr: localhost:6379
*/
package config
