package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// output is one file of a run. write receives a staging path in the same
// directory as path.
type output struct {
	path  string
	write func(tmp string) error
}

// commit writes every output to a staging file and renames them into place
// only after all writes succeed. On failure the staged files are removed and
// existing outputs are left untouched.
//
// Edge cases:
//   - A rename failure part way leaves the already renamed outputs in place.
//     The remaining staged files are still removed.
func commit(outputs []output) (err error) {
	staged := make([]string, 0, len(outputs))
	defer func() {
		if err == nil {
			return
		}
		for _, p := range staged {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, rmErr)
			}
		}
	}()

	for _, o := range outputs {
		if o.path == "" {
			return fmt.Errorf("output path is empty")
		}
		dir := filepath.Dir(o.path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, "."+filepath.Base(o.path)+".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp for %s: %w", o.path, err)
		}
		name := tmp.Name()
		staged = append(staged, name)
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("create temp for %s: %w", o.path, err)
		}
		if err := o.write(name); err != nil {
			return fmt.Errorf("write %s: %w", o.path, err)
		}
	}

	for i, o := range outputs {
		if err := os.Rename(staged[i], o.path); err != nil {
			return fmt.Errorf("rename %s: %w", o.path, err)
		}
	}
	return nil
}
