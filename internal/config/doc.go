package config

// Package config loads the YAML proxy map.
//
// The file carries a proxies: map keyed by source port. Entries that fail to
// parse (bad port key, malformed target, unknown format) are skipped with a
// warning so one broken entry never takes down the rest.
