package scan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// ProjectInfo is what can be learned about a folder from its manifest files.
// It gives the model hints for the Installation and Usage sections.
type ProjectInfo struct {
	// Kind is a short label such as "Go module" or "Node.js package"
	Kind string

	// Name is the module/package name, if the manifest has one
	Name string

	// Details are extra facts, e.g. "go 1.22", "requires github.com/spf13/cobra"
	Details []string
}

// markerKinds maps manifest files to a project kind, checked in order.
var markerKinds = []struct {
	file string
	kind string
}{
	{"package.json", "Node.js package"},
	{"pyproject.toml", "Python project"},
	{"requirements.txt", "Python project"},
	{"setup.py", "Python project"},
	{"Cargo.toml", "Rust crate"},
	{"pom.xml", "Maven project"},
	{"build.gradle", "Gradle project"},
	{"Gemfile", "Ruby project"},
	{"Makefile", "Make-based project"},
}

// DetectProject inspects well-known manifest files at the top of dir.
// It returns nil when nothing is recognized.
func DetectProject(dir string) *ProjectInfo {
	if info := detectGoModule(dir); info != nil {
		return info
	}

	for _, m := range markerKinds {
		path := filepath.Join(dir, m.file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		info := &ProjectInfo{Kind: m.kind}
		if m.file == "package.json" {
			info.Name = packageJSONName(path)
		}
		return info
	}

	if hasExt(dir, ".py") {
		return &ProjectInfo{Kind: "Python scripts"}
	}
	return nil
}

// detectGoModule parses go.mod for the module path, Go version and direct
// requirements.
func detectGoModule(dir string) *ProjectInfo {
	path := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	f, err := modfile.ParseLax(path, data, nil)
	if err != nil {
		return &ProjectInfo{Kind: "Go module"}
	}

	info := &ProjectInfo{Kind: "Go module"}
	if f.Module != nil {
		info.Name = f.Module.Mod.Path
	}
	if f.Go != nil {
		info.Details = append(info.Details, "go "+f.Go.Version)
	}

	var direct []string
	for _, req := range f.Require {
		if !req.Indirect {
			direct = append(direct, req.Mod.Path)
		}
	}
	if len(direct) > 0 {
		info.Details = append(info.Details, "requires "+strings.Join(direct, ", "))
	}
	return info
}

func packageJSONName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Name
}

func hasExt(dir, ext string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return true
		}
	}
	return false
}
