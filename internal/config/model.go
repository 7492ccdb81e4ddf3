package config

import "strconv"

// DefaultSiteName is used when no site can be derived from the request.
const DefaultSiteName = "default"

// System is the unified representation of an installation's config file.
// It is cached by the kernel, so it must stay a plain data structure.
type System struct {
	EnableMultisite bool              `msgpack:"enable_multisite"`
	DefaultSite     string            `msgpack:"default_site"`
	Sites           map[string]string `msgpack:"sites"` // domain -> site name
	TrustProxy      bool              `msgpack:"trust_proxy"`
	Database        Database          `msgpack:"database"`
	Settings        map[string]string `msgpack:"settings"`
}

// Database selects and addresses the relational database, if any.
type Database struct {
	Driver string `msgpack:"driver"`
	DSN    string `msgpack:"dsn"`
	Prefix string `msgpack:"prefix"`
}

// Enabled reports whether a database is configured at all.
func (d Database) Enabled() bool { return d.Driver != "" }

// Setting returns the free-form setting stored under key, or def.
func (s *System) Setting(key, def string) string {
	if v, ok := s.Settings[key]; ok {
		return v
	}
	return def
}

// SettingInt is Setting for integer values; unparsable values yield def.
func (s *System) SettingInt(key string, def int) int {
	v, ok := s.Settings[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// SiteFor resolves the site serving domain. Multi-site installations map
// domains explicitly and fall back to the configured default site;
// single-site installations always serve the default site.
func (s *System) SiteFor(domain string) string {
	if !s.EnableMultisite || len(s.Sites) == 0 {
		return DefaultSiteName
	}
	if name, ok := s.Sites[domain]; ok {
		return name
	}
	if s.DefaultSite != "" {
		return s.DefaultSite
	}
	return DefaultSiteName
}
