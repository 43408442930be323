// Package config provides configuration loading for speechcore hosts.
//
// Configuration is merged from layers: built-in defaults, then each file
// added with AddLayer (YAML by .yaml/.yml extension, JSON otherwise), then
// SPEECHCORE_* environment variables. Later layers only override the keys
// they contain.
//
//	loader := config.NewLoader()
//	loader.AddLayer("speechcore.yaml")
//	loader.AddLayer("local.json") // Overrides the base layer
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// SafeConfig wraps a Config for concurrent readers: Get returns a deep copy
// and Update validates before swapping.
//
// Durations are written as strings ("250ms", "5s") or as integer
// nanoseconds.
package config
