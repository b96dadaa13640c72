/*
Package config loads and persists the Mission Control configuration document.

The configuration lives in a single config.json adjacent to the server's
working directory:

	{
	  "port": 3847,
	  "repos": [{"name": "_pyrite", "path": "/home/user/_pyrite"}],
	  "debounceMs": 300
	}

Load applies defaults for absent fields and treats a missing file as a first
run; a malformed document is a fatal startup error. Save always writes the
full document and never patches in place.

The package also provides the atomic-write and backup-naming primitives used
by the counter service: WriteFileAtomic (temp file + rename in the target
directory) and BackupPath (ISO-8601 suffix with ':' and '.' replaced by '-').
*/
package config
