// Package config loads relq settings from a YAML file and opens the
// database driver, logger and cache they describe.
//
//	database:
//	  driver: mysql
//	  dsn: ${DB_USER}:${DB_PASS}@tcp(localhost:3306)/app?parseTime=true
//	  max_open_conns: 20
//	  slow_threshold: 200ms
//	log:
//	  level: info
//	  format: json
//	cache:
//	  driver: redis
//	  addr: localhost:6379
//	  prefix: "app:"
//	eager:
//	  concurrency: 8
//
// Variables are expanded from the environment after the optional .env
// files are loaded.
package config
