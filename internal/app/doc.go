// Package app contains the application layer around the kernel. It builds
// the process-wide resources (logger, cache store, metrics, compiled-in
// extensions), serves HTTP and keeps one booted kernel per site, which acts
// as the application context handed to modules and plugins.
package app
