package config

import "path/filepath"

// Paths is the data directory layout under a project root.
type Paths struct {
	Root      string
	Raw       string
	Cache     string
	Processed string
	External  string
}

// MakePaths returns the layout <root>/data/{raw,cache,processed,external}.
// It does not touch the filesystem.
func MakePaths(root string) Paths {
	data := filepath.Join(root, "data")
	return Paths{
		Root:      root,
		Raw:       filepath.Join(data, "raw"),
		Cache:     filepath.Join(data, "cache"),
		Processed: filepath.Join(data, "processed"),
		External:  filepath.Join(data, "external"),
	}
}
