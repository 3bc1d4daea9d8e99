// Package config loads and edits the storm tool configuration.
//
// The configuration lives as YAML inside the package store directory
// (FilePath). It selects the sandbox backend, tunes the CLI, locates
// custom policies, and carries the repository table. A missing file is
// not an error: Load returns the defaults, so a fresh store works
// without any setup.
//
// The store directory itself resolves from the configured path, then
// $STORMPATH, then /var/lib/storm for root or ~/.local/share/storm.
//
// Get, Set, and Unset edit single values by dotted key directly on the
// file, preserving keys this version of storm does not understand:
//
//	config.Set(path, "cli.prompt", "false")
//	config.Get(path, "repo.default.0")
//	config.Unset(path, "sandbox.build_timeout_seconds")
package config
