package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

const modulePrefix = "jobportal/internal/"

// allowed maps a package to the internal packages its production code may
// import. Packages missing from the map are reported.
var allowed = map[string][]string{
	"cmd":        {"cli", "model"},
	"cli":        {"config", "listsync", "logging", "model", "portal", "profile", "workflow"},
	"config":     {"logging", "model", "portal", "runstore"},
	"listsync":   {"model"},
	"portal":     {"model"},
	"portaltest": {"model"},
	"profile":    {"model", "runstore"},
	"workflow":   {"model"},
	"logging":    {},
	"model":      {},
	"runstore":   {},
}

// testOnly may additionally be imported from _test.go files.
var testOnly = []string{"portal", "portaltest"}

type violation struct {
	path string
	msg  string
}

func main() {
	var found []violation
	for _, root := range []string{"cmd", "internal"} {
		vs, err := checkTree(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "boundary walk failed: %v\n", err)
			os.Exit(1)
		}
		found = append(found, vs...)
	}

	if len(found) > 0 {
		sort.Slice(found, func(i, j int) bool { return found[i].path < found[j].path })
		fmt.Fprintln(os.Stderr, "architecture boundary violations detected:")
		for _, v := range found {
			fmt.Fprintf(os.Stderr, "- %s: %s\n", v.path, v.msg)
		}
		os.Exit(1)
	}
	fmt.Println("architecture boundary check: OK")
}

func checkTree(root string) ([]violation, error) {
	var out []violation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}

		src := sourcePackage(path)
		if src == "" {
			return nil
		}
		allow, ok := allowed[src]
		if !ok {
			out = append(out, violation{path, fmt.Sprintf("unknown source package %q", src)})
			return nil
		}
		if strings.HasSuffix(path, "_test.go") {
			allow = append(append([]string{}, allow...), testOnly...)
		}

		file, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, imp := range file.Imports {
			tgt, ok := targetPackage(strings.Trim(imp.Path.Value, "\""))
			if !ok || tgt == src {
				continue
			}
			if !slices.Contains(allow, tgt) {
				out = append(out, violation{path, fmt.Sprintf("%s -> %s is forbidden", src, tgt)})
			}
		}
		return nil
	})
	return out, err
}

// sourcePackage names the layer a file belongs to: "cmd" for anything under
// cmd/, otherwise the first directory below internal/.
func sourcePackage(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	switch {
	case len(parts) >= 2 && parts[0] == "cmd":
		return "cmd"
	case len(parts) >= 3 && parts[0] == "internal":
		return parts[1]
	}
	return ""
}

func targetPackage(importPath string) (string, bool) {
	rest, ok := strings.CutPrefix(importPath, modulePrefix)
	if !ok || rest == "" {
		return "", false
	}
	pkg, _, _ := strings.Cut(rest, "/")
	return pkg, true
}
