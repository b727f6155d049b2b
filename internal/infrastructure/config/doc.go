// Package config loads and validates MachineID Core configuration.
//
// Settings come from a YAML file layered over built-in defaults, with
// MACHINEID_* environment variables applied last so secrets never
// need to live on disk. Load fails fast on malformed YAML or a config
// that cannot run, notably a missing or short admin token secret.
//
// Configuration is read once at startup; there is no reload.
//
// Security Considerations:
//   - Set sensitive values (admin secret, broker passwords, tokens)
//     via environment variables rather than the file
//   - Keep the config file at restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
