// Package config provides configuration management for toolhost.
//
// Settings are layered: built-in defaults, then the user file, then the
// project file. Later layers override earlier ones field by field.
//
//  1. Defaults (compiled in)
//  2. User configuration (~/.config/toolhost/config.yaml)
//  3. Project configuration (./.toolhost/config.yaml)
//
// # Configuration Structure
//
//	logLevel: info
//	client:
//	  name: toolhost
//	  version: 1.0.0
//	protocolVersion: "2024-11-05"
//	timeouts:
//	  init: 10s
//	  request: 5s
//	  stopGrace: 5s
//	  bootstrapDelay: 100ms
//	events:
//	  enabled: false
//	  addr: 127.0.0.1:7878
//	  allowedOrigins: ["http://localhost:3000"]
//	  bufferSize: 256
//	logs:
//	  bufferSize: 500
//	tools:
//	  cacheTTL: 5m
//	selfUpdate:
//	  repository: toolhost/toolhost
//
// # Server Definitions
//
// Installed tool servers live in a separate file, servers.yaml, next to the
// user configuration. ServerStore reads and writes it atomically.
//
//	servers:
//	  - id: filesystem
//	    command: npx
//	    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
//	    env:
//	      TOKEN: ${FS_TOKEN:-none}
//	    autoStart: true
//
// Environment values are expanded when the process is launched, so secrets
// can stay in the caller's environment.
package config
