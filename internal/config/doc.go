// Package config defines the format-agnostic system configuration model of
// an installation, along with the Loader interface for reading it from the
// configuration file at the installation root.
//
// The `config.System` value is the single source of truth for site
// resolution and database wiring in the kernel. Concrete loaders for HCL
// (config.hcl) and YAML (config.yml) live in this package as well, together
// with the HCL decoding helpers the site and extension manifests share.
package config
