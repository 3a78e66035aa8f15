// Package config handles configuration loading for forgebot.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	stats:
//	  token: "${FORGEBOT_STATS_TOKEN}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":8080"          # health and stats endpoints
//
//	shards:
//	  expected: 4                 # shards that must report ready
//
//	database:
//	  path: "/var/lib/forgebot/forgebot.db"
//
//	confirm:
//	  window: "30s"               # reaction collection window
//	  marker_emoji_id: 0          # custom emoji id, 0 = unicode default
//	  marker_emoji_name: ""
//
//	cache:
//	  max_size: 512               # history cache capacity
//
//	notices:
//	  join_log_channel: 0         # channel for join/leave notices, 0 = off
//
//	rate:
//	  per_second: 1               # per-user command rate
//	  burst: 3
//
//	compiler:
//	  endpoint: ""                # external compile service
//	  languages: ["c++", "rust"]
//
//	stats:
//	  enabled: false
//	  endpoint: ""                # bot-list style endpoint
//	  token: ""
//	  schedule: "@every 30m"      # cron spec for republication
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
