// Package config loads RAAF settings from YAML files and RAAF_* environment
// variables.
//
// Every Load call uses its own viper instance; there is no process-wide
// configuration. The result is a plain Config value the caller turns into
// runner, memory, session and logging options.
//
//	provider:
//	  type: anthropic
//	  model: claude-3-5-haiku-latest
//	runner:
//	  max_turns: 6
//	  tool_timeout: 10s
//	memory:
//	  strategy: hybrid
//	session:
//	  store: libsql
//	  dsn: file:raaf.db
//	  ttl: 12h
package config
