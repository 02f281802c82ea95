// Package config provides the runtime configuration of the pubsock CLI.
//
// Values come from three layers, later layers winning: built-in defaults,
// an optional pubsock.json file, and PUBSOCK_* environment variables.
// Command line flags are applied on top by cmd/pubsock.
//
// # Configuration File Structure
//
//	{
//	  "host": "0.0.0.0",
//	  "port": 8080,
//	  "path": "/chat",
//	  "adminAddr": "127.0.0.1:9090",
//	  "allowedOrigins": ["https://example.com"],
//	  "allowedOriginPattern": "https://.*\\.example\\.com",
//	  "pingPong": true,
//	  "closeOnException": true,
//	  "shutdownTimeout": "10s",
//	  "log": {"level": "info", "format": "json"}
//	}
//
// # Usage
//
//	cfg, err := config.Load("pubsock.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
