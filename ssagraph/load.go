package ssagraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Load loads the packages matching patterns and builds the whole program
// in SSA form. It returns the program and the SSA packages of the initial
// packages in pattern order.
func Load(ctx context.Context, dir string, patterns ...string) (*ssa.Program, []*ssa.Package, error) {
	initial, err := packages.Load(&packages.Config{
		Context: ctx,
		Dir:     dir,
		Mode:    packages.LoadAllSyntax,
	}, patterns...)
	if err != nil {
		return nil, nil, fmt.Errorf("load packages: %w", err)
	} else if n := packages.PrintErrors(initial); n > 0 {
		return nil, nil, fmt.Errorf("packages contain %d errors", n)
	}

	// Build program in SSA form.
	prog, pkgs := ssautil.AllPackages(initial, ssa.InstantiateGenerics)
	for i, pkg := range pkgs {
		if pkg == nil {
			return nil, nil, fmt.Errorf("cannot build SSA for package %s", initial[i])
		}
	}
	prog.Build()
	return prog, pkgs, nil
}

// Functions returns the package-level functions of pkgs whose name matches
// one of names, or that start with prefix when names is empty. Results are
// sorted by name.
func Functions(pkgs []*ssa.Package, prefix string, names ...string) []*ssa.Function {
	var fns []*ssa.Function
	for _, pkg := range pkgs {
		for _, m := range pkg.Members {
			fn, ok := m.(*ssa.Function)
			if !ok || len(fn.Blocks) == 0 {
				continue
			}
			if len(names) > 0 {
				for _, name := range names {
					if fn.Name() == name {
						fns = append(fns, fn)
					}
				}
			} else if strings.HasPrefix(fn.Name(), prefix) {
				fns = append(fns, fn)
			}
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].String() < fns[j].String() })
	return fns
}
