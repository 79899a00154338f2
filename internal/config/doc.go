// Package config loads jamrec's TOML configuration.
//
// Load starts from Default, overlays the file (an explicit path, else
// ~/.config/jamrec/config.toml, else ./jamrec.toml), expands "~" in paths
// and validates the result. A missing file is not an error: defaults are
// enough to record.
package config
