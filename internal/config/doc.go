// Package config provides configuration structures and loading for warcrawl.
//
// The runtime configuration is read with viper from warcrawl.yaml,
// WARCRAWL_* environment variables and CLI flags. The crawl plan, which
// lists the domains to crawl, is a separate YAML file.
package config
