// Package config loads the configuration of a subgraph process.
//
// Configuration is layered: built-in defaults, then JSON files in the order
// they were added, then FEDGRAPH_* environment variables. Duration settings
// may be written as strings ("2s", "14d") in files.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/market.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Validate fills defaults for every section. The store section selects the
// record backend. memory serves the subgraph's built-in catalog; kv and
// redis read records written by the seed step or by other tools.
//
// # Environment overrides
//
//	FEDGRAPH_SERVICE         subgraph to serve
//	FEDGRAPH_BIND_ADDRESS    HTTP bind address
//	FEDGRAPH_SCHEMA_DIR      where schema_<service>.graphql is written
//	FEDGRAPH_NATS_URLS       comma-separated NATS servers
//	FEDGRAPH_NATS_USERNAME, FEDGRAPH_NATS_PASSWORD, FEDGRAPH_NATS_TOKEN
//	FEDGRAPH_STORE_BACKEND   memory, kv or redis
//	FEDGRAPH_STORE_SEED      write the built-in catalog into the backend
//	FEDGRAPH_KV_BUCKET       JetStream KV bucket name
//	FEDGRAPH_REDIS_ADDR, FEDGRAPH_REDIS_PASSWORD, FEDGRAPH_REDIS_PREFIX
//	FEDGRAPH_LOG_LEVEL       debug, info, warn or error
//	FEDGRAPH_LOG_FORMAT      json or text
//
// Config files must be .json, at most 1MB and nested at most 32 levels deep.
// Relative paths must stay inside the working directory.
package config
