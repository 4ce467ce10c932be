package evo

import (
	"os"
	"path/filepath"
	"strings"
)

// ModuleExt is the source file extension for modules.
const ModuleExt = ".evo"

// Module is the frozen result of executing a module file: its final
// environment and function table. Functions defined in the module carry the
// module's name so their bodies can reach sibling functions unqualified.
type Module struct {
	Name      string
	Path      string
	Env       map[string]Value
	Functions map[string]*Function

	lambdas map[string]*closure // the loading evaluator's registry
	deps    []*Module
}

// moduleCache holds loaded modules by name. Nested loaders share the cache
// of the evaluator that started the import, which also lets them see the
// chain of modules currently being loaded.
type moduleCache struct {
	modules map[string]*Module
	loading []string
}

func newModuleCache() *moduleCache {
	return &moduleCache{modules: make(map[string]*Module)}
}

// linkedModule is a module as seen from one evaluator: lambda values in
// its environment have been re-registered under this evaluator's ids.
type linkedModule struct {
	env       map[string]Value
	functions map[string]*Function
}

// Import loads the named module if needed and exposes its bindings and
// functions as alias.name.
func (e *Evaluator) Import(name, alias string) error {
	mod, err := e.loadModule(name)
	if err != nil {
		return err
	}
	e.link(mod)
	for k, v := range mod.Env {
		e.env.Set(alias+"."+k, e.adoptValue(v, mod))
	}
	for k, fn := range mod.Functions {
		e.functions[alias+"."+k] = fn
	}
	return nil
}

// Modules lists the names of modules linked into this evaluator, in the
// order they were first imported.
func (e *Evaluator) Modules() []string {
	return append([]string(nil), e.linkOrder...)
}

func (e *Evaluator) link(mod *Module) {
	if _, ok := e.linked[mod.Name]; ok {
		return
	}
	lm := &linkedModule{env: make(map[string]Value, len(mod.Env)), functions: mod.Functions}
	e.linked[mod.Name] = lm
	e.linkOrder = append(e.linkOrder, mod.Name)
	for k, v := range mod.Env {
		lm.env[k] = e.adoptValue(v, mod)
	}
	for _, dep := range mod.deps {
		e.link(dep)
	}
}

// adoptValue copies a value produced by a module's evaluator, giving every
// lambda inside it an id in this evaluator's registry. A closure is adopted
// at most once.
func (e *Evaluator) adoptValue(v Value, mod *Module) Value {
	switch v.Kind {
	case ValLambda:
		c, ok := mod.lambdas[v.Str]
		if !ok {
			return v
		}
		if id, ok := e.adopted[c]; ok {
			return LambdaVal(id, v.Params)
		}
		id := e.newLambdaID()
		e.adopted[c] = id
		home := c.module
		if home == "" {
			home = mod.Name
		}
		nc := &closure{params: c.params, body: c.body, module: home}
		e.lambdas[id] = nc
		nc.captured = make(map[string]Value, len(c.captured))
		for k, cv := range c.captured {
			nc.captured[k] = e.adoptValue(cv, mod)
		}
		return LambdaVal(id, v.Params)
	case ValList:
		out := make([]Value, len(v.List))
		for i, item := range v.List {
			out[i] = e.adoptValue(item, mod)
		}
		return ListVal(out)
	case ValDict:
		out := make(map[string]Value, len(v.Dict))
		for k, item := range v.Dict {
			out[k] = e.adoptValue(item, mod)
		}
		return DictVal(out)
	default:
		return v
	}
}

func (e *Evaluator) loadModule(name string) (*Module, error) {
	cache := e.modules
	if mod, ok := cache.modules[name]; ok {
		return mod, nil
	}
	for _, loading := range cache.loading {
		if loading == name {
			chain := append(append([]string(nil), cache.loading...), name)
			return nil, runtimeError("import cycle detected: %s", strings.Join(chain, " -> "))
		}
	}

	path, err := e.resolveModulePath(name)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, runtimeError("Failed to read module '%s': %v", name, err)
	}
	elems, err := Parse(string(src))
	if err != nil {
		return nil, runtimeError("Failed to parse module '%s': %v", name, err)
	}

	child := NewEvaluator()
	child.Stdout = e.Stdout
	child.ModuleRoot = e.ModuleRoot
	child.ModulePath = e.ModulePath
	child.modules = cache

	cache.loading = append(cache.loading, name)
	_, err = child.Execute(elems)
	cache.loading = cache.loading[:len(cache.loading)-1]
	if err != nil {
		return nil, runtimeError("Failed to execute module '%s': %v", name, err)
	}

	mod := freezeModule(name, path, child)
	cache.modules[name] = mod
	return mod, nil
}

func freezeModule(name, path string, child *Evaluator) *Module {
	mod := &Module{
		Name:      name,
		Path:      path,
		Env:       child.env.Bindings(),
		Functions: make(map[string]*Function, len(child.functions)),
		lambdas:   child.lambdas,
	}
	for k, fn := range child.functions {
		if fn.Module == "" {
			fn = &Function{Params: fn.Params, Body: fn.Body, Module: name}
		}
		mod.Functions[k] = fn
	}
	for _, dep := range child.linkOrder {
		if m, ok := child.modules.modules[dep]; ok {
			mod.deps = append(mod.deps, m)
		}
	}
	return mod
}

// resolveModulePath searches modules/, examples/ and the module root
// itself, then each ModulePath directory.
func (e *Evaluator) resolveModulePath(name string) (string, error) {
	file := name
	if !strings.HasSuffix(file, ModuleExt) {
		file += ModuleExt
	}
	root := e.ModuleRoot
	candidates := []string{
		filepath.Join(root, "modules", file),
		filepath.Join(root, "examples", file),
		filepath.Join(root, file),
	}
	for _, dir := range e.ModulePath {
		candidates = append(candidates, filepath.Join(dir, file))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", runtimeError("Module '%s' not found in modules/, examples/, or current directory", name)
}
