package shell

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RequiredManifestFields must be present and non-empty for the shell to be installable.
var RequiredManifestFields = []string{"name", "short_name", "icons", "start_url", "display"}

// Check is a single installability criterion.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of CheckInstallable.
type Report struct {
	Dir    string  `json:"dir"`
	Checks []Check `json:"checks"`
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Failed returns the checks that did not pass.
func (r Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

func (r *Report) add(name string, ok bool, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, OK: ok, Detail: detail})
}

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
}

// CheckInstallable inspects a shell directory for the pieces a browser needs
// before it offers to install the app.
func CheckInstallable(dir string) Report {
	r := Report{Dir: dir}

	manifest, err := readManifest(filepath.Join(dir, "manifest.json"))
	switch {
	case os.IsNotExist(err):
		r.add("manifest.json exists", false, "manifest.json is missing")
	case err != nil:
		r.add("manifest.json exists", false, err.Error())
	default:
		r.add("manifest.json exists", true, "")
	}

	if manifest != nil {
		var missing []string
		for _, field := range RequiredManifestFields {
			if isEmptyValue(manifest[field]) {
				missing = append(missing, field)
			}
		}
		r.add("manifest.json has required properties", len(missing) == 0, joinMissing(missing))

		icons, ok := decodeIcons(manifest["icons"])
		if !ok {
			r.add("manifest.json has an icons array", false, "icons is not an array")
		} else {
			for _, size := range []int{IconSmall, IconLarge} {
				name := fmt.Sprintf("%dx%d icon exists", size, size)
				found := hasIcon(dir, icons, size)
				detail := ""
				if !found {
					detail = "icon is missing or file not found"
				}
				r.add(name, found, detail)
			}
		}
	}

	_, err = os.Stat(filepath.Join(dir, "sw.js"))
	r.add("service worker exists", err == nil, errDetail(err))

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil {
		r.add("index.html readable", false, err.Error())
		return r
	}
	page := string(index)
	r.add("service worker registration in index.html", strings.Contains(page, "serviceWorker.register"), "")
	r.add("manifest link in index.html", strings.Contains(page, `<link rel="manifest"`), "")

	return r
}

func readManifest(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest.json: %w", err)
	}
	return m, nil
}

func decodeIcons(v any) ([]manifestIcon, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	icons := make([]manifestIcon, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		src, _ := obj["src"].(string)
		sizes, _ := obj["sizes"].(string)
		icons = append(icons, manifestIcon{Src: src, Sizes: sizes})
	}
	return icons, true
}

func hasIcon(dir string, icons []manifestIcon, size int) bool {
	want := fmt.Sprintf("%dx%d", size, size)
	for _, icon := range icons {
		if icon.Sizes != want || icon.Src == "" {
			continue
		}
		p := filepath.Join(dir, filepath.FromSlash(strings.TrimLeft(icon.Src, "/")))
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	}
	return false
}

func joinMissing(missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	return "missing: " + strings.Join(missing, ", ")
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	if os.IsNotExist(err) {
		return "file is missing"
	}
	return err.Error()
}
