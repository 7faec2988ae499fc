// Package config loads kernel configuration from the environment using
// envconfig.
//
// Every field has a default, so an empty environment yields Default():
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	k, err := kernel.New(cfg)
package config
