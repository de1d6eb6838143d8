// Command genregistry scans a models directory for structs that embed Base
// and writes models_registry.go listing them.
package main

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

const registryFile = "models_registry.go"

func main() {
	_ = godotenv.Load()

	modelsDir := os.Getenv("BUILDOPS_MODELS_PATH")
	if len(os.Args) >= 2 {
		modelsDir = os.Args[1]
	}
	if modelsDir == "" {
		fmt.Fprintln(os.Stderr, "usage: genregistry <models_dir> (or set BUILDOPS_MODELS_PATH)")
		os.Exit(2)
	}

	names, pkg, err := scan(modelsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	src, err := render(pkg, names)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	out := filepath.Join(modelsDir, registryFile)
	if err := os.WriteFile(out, src, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s with %d models.\n", out, len(names))
}

func scan(dir string) ([]string, string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read directory: %w", err)
	}

	var names []string
	pkg := filepath.Base(dir)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") || name == registryFile {
			continue
		}

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, 0)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse %s: %w", name, err)
		}
		pkg = node.Name.Name
		names = append(names, embeddingBase(node)...)
	}
	sort.Strings(names)
	return names, pkg, nil
}

// embeddingBase returns the struct types in node that embed Base or
// gorm.Model.
func embeddingBase(node *ast.File) []string {
	var names []string
	ast.Inspect(node, func(n ast.Node) bool {
		gen, ok := n.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			return true
		}
		for _, spec := range gen.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := typeSpec.Type.(*ast.StructType)
			if !ok {
				continue
			}
			for _, field := range st.Fields.List {
				if len(field.Names) != 0 {
					continue
				}
				switch t := field.Type.(type) {
				case *ast.Ident:
					if t.Name == "Base" {
						names = append(names, typeSpec.Name.Name)
					}
				case *ast.SelectorExpr:
					if x, ok := t.X.(*ast.Ident); ok && x.Name == "gorm" && t.Sel.Name == "Model" {
						names = append(names, typeSpec.Name.Name)
					}
				}
			}
		}
		return true
	})
	return names
}

func render(pkg string, names []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("// Code generated by genregistry. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkg)
	b.WriteString("var ModelTypeRegistry = map[string]interface{}{\n")
	for _, name := range names {
		fmt.Fprintf(&b, "\t%q: %s{},\n", name, name)
	}
	b.WriteString("}\n")
	return format.Source(b.Bytes())
}
