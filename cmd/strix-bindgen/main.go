// Command strix-bindgen generates binding tables for annotated event handlers.
//
// A handler is any function or method with the signature
//
//	func(ctx context.Context, ev events.Event) error
//
// whose doc comment contains a line
//
//	// strix:on <pattern> [binding name]
//
// For every Go file with annotated handlers a sibling <file>.strix.go is
// written. Methods are collected into a Bindings method on their receiver, so
// the receiver can be passed to strix.Bind. Free functions get a package level
// <name>Binding variable.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/casualjim/strix/namespace"
	"github.com/go-openapi/swag"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"mvdan.cc/gofumpt/format"
)

const (
	annotation   = "strix:on"
	strixImport  = "github.com/casualjim/strix"
	strixPkg     = "strix"
	generatedExt = ".strix.go"
	header       = "// Code generated by strix-bindgen. DO NOT EDIT."
)

var (
	log    = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}).With().Timestamp().Logger()
	osExit = os.Exit
)

type bindingInfo struct {
	name        string
	receiver    string
	pattern     string
	bindingName string
	comments    []*ast.Comment
	export      bool
}

func main() {
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
	))

	cmd := newRootCmd()
	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		path   string
		export bool
	)
	cmd := &cobra.Command{
		Use:           "strix-bindgen",
		Short:         "Generate strix binding tables for annotated handlers",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(path, export)
		},
	}
	cmd.Flags().StringVar(&path, "path", ".", "Go file or directory to scan")
	cmd.Flags().BoolVar(&export, "export", false, "export generated binding variables")
	return cmd
}

func run(path string, export bool) error {
	info, err := os.Stat(path)
	if err != nil {
		slog.Error("Error accessing path", slog.String("path", path), slog.Any("error", err))
		return err
	}
	if !info.IsDir() {
		return processGoFile(path, export)
	}

	var errs []error
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSourceFile(d.Name()) {
			return nil
		}
		if err := processGoFile(p, export); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if walkErr != nil {
		slog.Error("Error accessing path", slog.String("path", path), slog.Any("error", walkErr))
		errs = append(errs, walkErr)
	}
	return errors.Join(errs...)
}

func skipDir(name string) bool {
	return name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func isSourceFile(name string) bool {
	return strings.HasSuffix(name, ".go") &&
		!strings.HasSuffix(name, "_test.go") &&
		!strings.HasSuffix(name, generatedExt)
}

func processGoFile(path string, export bool) error {
	fset := token.NewFileSet()
	fileAST, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		slog.Error("Error parsing file", slog.String("file", path), slog.Any("error", err))
		return err
	}

	bindings, err := collectBindings(fileAST, export)
	if err != nil {
		slog.Error("Error collecting bindings", slog.String("file", path), slog.Any("error", err))
		return fmt.Errorf("%s: %w", path, err)
	}
	if len(bindings) == 0 {
		return nil
	}

	src, err := renderFile(createBindingsFile(fileAST.Name.Name, bindings))
	if err != nil {
		slog.Error("Error formatting file", slog.String("file", path), slog.Any("error", err))
		return err
	}

	out := strings.TrimSuffix(path, ".go") + generatedExt
	if err := os.WriteFile(out, src, 0o644); err != nil {
		slog.Error("Error writing file", slog.String("file", out), slog.Any("error", err))
		return err
	}
	slog.Info("Generated file", slog.String("file", out), slog.Int("bindings", len(bindings)))
	return nil
}

// collectBindings returns the annotated handlers of a file in source order.
func collectBindings(fileAST *ast.File, export bool) ([]bindingInfo, error) {
	var (
		bindings []bindingInfo
		errs     []error
	)
	for _, decl := range fileAST.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Doc == nil {
			continue
		}

		var (
			pattern, bindingName string
			annotated            bool
			comments             []*ast.Comment
		)
		for _, c := range fn.Doc.List {
			text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
			if !strings.HasPrefix(text, annotation) {
				comments = append(comments, &ast.Comment{Text: c.Text})
				continue
			}
			fields := strings.Fields(strings.TrimPrefix(text, annotation))
			if len(fields) == 0 || len(fields) > 2 {
				errs = append(errs, fmt.Errorf("%s: annotation must be %q", fn.Name.Name, "// strix:on <pattern> [name]"))
				break
			}
			pattern = fields[0]
			bindingName = fn.Name.Name
			if len(fields) == 2 {
				bindingName = fields[1]
			}
			annotated = true
		}
		if !annotated {
			continue
		}

		if _, err := namespace.ParsePattern(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", fn.Name.Name, err))
			continue
		}
		if !isHandlerSignature(fn.Type) {
			errs = append(errs, fmt.Errorf("%s: handler must have signature func(context.Context, events.Event) error", fn.Name.Name))
			continue
		}
		receiver, err := receiverName(fn)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		bindings = append(bindings, bindingInfo{
			name:        fn.Name.Name,
			receiver:    receiver,
			pattern:     pattern,
			bindingName: bindingName,
			comments:    comments,
			export:      export,
		})
	}
	return bindings, errors.Join(errs...)
}

func isHandlerSignature(ft *ast.FuncType) bool {
	if ft.TypeParams != nil && len(ft.TypeParams.List) > 0 {
		return false
	}
	return countFields(ft.Params) == 2 && countFields(ft.Results) == 1
}

func countFields(fl *ast.FieldList) int {
	if fl == nil {
		return 0
	}
	n := 0
	for _, f := range fl.List {
		n += max(1, len(f.Names))
	}
	return n
}

func receiverName(fn *ast.FuncDecl) (string, error) {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return "", nil
	}
	typ := fn.Recv.List[0].Type
	if star, ok := typ.(*ast.StarExpr); ok {
		typ = star.X
	}
	ident, ok := typ.(*ast.Ident)
	if !ok {
		return "", fmt.Errorf("%s: generic receivers are not supported", fn.Name.Name)
	}
	return ident.Name, nil
}

// createBindingsFile builds the generated file: the strix import, one Bindings
// method per receiver and one variable per free function.
func createBindingsFile(pkgName string, bindings []bindingInfo) *ast.File {
	file := &ast.File{
		Name: ast.NewIdent(pkgName),
		Decls: []ast.Decl{
			&ast.GenDecl{
				Tok: token.IMPORT,
				Specs: []ast.Spec{
					&ast.ImportSpec{Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(strixImport)}},
				},
			},
		},
	}

	var receivers []string
	byReceiver := make(map[string][]bindingInfo)
	for _, b := range bindings {
		if b.receiver == "" {
			continue
		}
		if _, seen := byReceiver[b.receiver]; !seen {
			receivers = append(receivers, b.receiver)
		}
		byReceiver[b.receiver] = append(byReceiver[b.receiver], b)
	}
	for _, recv := range receivers {
		file.Decls = append(file.Decls, createBindingsMethodAST(recv, byReceiver[recv]))
	}
	for _, b := range bindings {
		if b.receiver == "" {
			file.Decls = append(file.Decls, createBindingVariableAST(b))
		}
	}
	return file
}

func createBindingVariableAST(b bindingInfo) ast.Decl {
	name := b.name
	if b.export {
		name = exportName(name)
	}
	decl := &ast.GenDecl{
		Tok: token.VAR,
		Specs: []ast.Spec{
			&ast.ValueSpec{
				Names:  []*ast.Ident{ast.NewIdent(name + "Binding")},
				Values: []ast.Expr{onCall(b, ast.NewIdent(b.name))},
			},
		},
	}
	if len(b.comments) > 0 {
		decl.Doc = &ast.CommentGroup{List: b.comments}
	}
	return decl
}

func createBindingsMethodAST(recv string, bindings []bindingInfo) ast.Decl {
	args := make([]ast.Expr, 0, len(bindings))
	for _, b := range bindings {
		args = append(args, onCall(b, &ast.SelectorExpr{X: ast.NewIdent("r"), Sel: ast.NewIdent(b.name)}))
	}
	return &ast.FuncDecl{
		Doc: &ast.CommentGroup{List: []*ast.Comment{
			{Text: fmt.Sprintf("// Bindings returns the binding table of %s.", recv)},
		}},
		Recv: &ast.FieldList{List: []*ast.Field{{
			Names: []*ast.Ident{ast.NewIdent("r")},
			Type:  &ast.StarExpr{X: ast.NewIdent(recv)},
		}}},
		Name: ast.NewIdent("Bindings"),
		Type: &ast.FuncType{
			Params: &ast.FieldList{},
			Results: &ast.FieldList{List: []*ast.Field{{
				Type: &ast.StarExpr{X: strixSel("Bindings")},
			}}},
		},
		Body: &ast.BlockStmt{List: []ast.Stmt{
			&ast.ReturnStmt{Results: []ast.Expr{&ast.CallExpr{Fun: strixSel("NewBindings"), Args: args}}},
		}},
	}
}

func onCall(b bindingInfo, handler ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{
		Fun: strixSel("On"),
		Args: []ast.Expr{
			&ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(b.bindingName)},
			&ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(b.pattern)},
			handler,
		},
	}
}

func strixSel(name string) *ast.SelectorExpr {
	return &ast.SelectorExpr{X: ast.NewIdent(strixPkg), Sel: ast.NewIdent(name)}
}

func exportName(name string) string {
	return swag.ToGoName(name)
}

// renderFile prints the generated declarations with their doc comments and
// formats the result with gofumpt.
func renderFile(file *ast.File) ([]byte, error) {
	fset := token.NewFileSet()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n\npackage %s\n\n", header, file.Name.Name)
	for _, decl := range file.Decls {
		var doc *ast.CommentGroup
		switch d := decl.(type) {
		case *ast.GenDecl:
			doc = d.Doc
			cp := *d
			cp.Doc = nil
			decl = &cp
		case *ast.FuncDecl:
			doc = d.Doc
			cp := *d
			cp.Doc = nil
			decl = &cp
		}
		if doc != nil {
			for _, c := range doc.List {
				buf.WriteString(c.Text)
				buf.WriteByte('\n')
			}
		}
		if err := printer.Fprint(&buf, fset, decl); err != nil {
			return nil, err
		}
		buf.WriteString("\n\n")
	}
	return format.Source(buf.Bytes(), format.Options{LangVersion: "go1.23"})
}
