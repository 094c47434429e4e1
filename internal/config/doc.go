// Package config loads crakv settings from YAML or JSON files.
//
// Settings are layered: Default, then the file, then CRAKV_* environment
// variables (ApplyEnv), then command line flags applied by the caller.
//
//	node:
//	  role: kv          # kv | echo
//	  workers: 8        # 0 = number of CPUs
//	  store: locked     # locked | owned
//	  start_msg_id: 1
//	log:
//	  level: info
//	admin:
//	  enabled: true
//	  addr: 127.0.0.1:8080
//	scenario:
//	  duration: 10s
//	  node_count: 3
//	  chaos:
//	    enabled: true
//	    attack_types: [partition, delay]
package config
