// Package htmlpatch marks relative script tags in built HTML files as ES
// modules so that browsers load the emitted bundles correctly.
package htmlpatch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Only bare relative tags match; a tag that already has a type attribute or
// an absolute src is left alone, which makes the rewrite idempotent.
var relativeScript = regexp.MustCompile(`<script src="\./([^"]+\.js)"></script>`)

const moduleScript = `<script type="module" src="./$1"></script>`

// PatchContent rewrites every relative script tag in html and reports
// whether anything changed.
func PatchContent(html string) (string, bool) {
	patched := relativeScript.ReplaceAllString(html, moduleScript)
	return patched, patched != html
}

// PatchDir patches the *.html files directly inside dir. Only files whose
// content changed are written back, with their original mode. The modified
// paths are returned in directory order, and each is reported on out.
func PatchDir(dir string, out io.Writer) ([]string, error) {
	if out == nil {
		out = io.Discard
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list html files in %s: %w", dir, err)
	}

	var modified []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".html") {
			continue
		}
		file := filepath.Join(dir, entry.Name())
		changed, err := patchFile(file)
		if err != nil {
			return modified, err
		}
		if changed {
			modified = append(modified, file)
			fmt.Fprintf(out, "✅ Fixed %s to include type=\"module\"\n", file)
		}
	}
	return modified, nil
}

func patchFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	patched, changed := PatchContent(string(data))
	if !changed {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(patched), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
