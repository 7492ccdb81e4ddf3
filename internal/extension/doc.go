// Package extension defines the two kinds of installed extensions, modules
// (which serve pages) and plugins (which attach cross-cutting behaviour to
// every dispatch of a site), and the catalog that knows which of them are
// installed.
//
// An extension is installed when both halves exist: a manifest directory
// below the installation root (modules/<name>/extension.hcl or
// plugins/<name>/extension.hcl) and a Go factory registered under the same
// name by compiled-in code. The catalog scans the installation once at
// startup and afterwards answers every existence question from memory, so
// dispatch never touches the file system to resolve an extension name.
package extension
