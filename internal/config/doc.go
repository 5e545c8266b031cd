// Package config provides configuration structures for cfstatic.
// It defines the options of a generation run, the per-site settings
// read from the .cfstatic file, and the credential store that remembers
// gateway and Pages deployment credentials between runs.
package config
