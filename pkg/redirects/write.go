package redirects

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/cdnimg/pkg/safeio"
)

// FileName is the default redirect file inside the publish directory.
const FileName = "_redirects"

// WriteTarget merges rules ahead of whatever the target file already holds.
// Targets ending in .toml are treated as netlify.toml, anything else as a
// _redirects file. A missing target is created.
func WriteTarget(target string, rules []Rule) error {
	existing, err := os.ReadFile(target) // #nosec G304 -- target is the operator-selected redirect file
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", target, err)
	}

	var out []byte
	if strings.EqualFold(filepath.Ext(target), ".toml") {
		out, err = MergeTOML(rules, existing)
		if err != nil {
			return err
		}
	} else {
		out = []byte(RenderFile(rules, string(existing)))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	if err := safeio.WriteFilePreservePerms(target, out); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}
