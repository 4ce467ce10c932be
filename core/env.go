package evo

// Environment is the single flat binding table shared by every call frame.
// Scoping is simulated: a frame records what it overwrote and puts it back
// when it unwinds.
type Environment struct {
	vars map[string]Value
}

func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]Value)}
}

func (env *Environment) Get(name string) (Value, bool) {
	v, ok := env.vars[name]
	return v, ok
}

func (env *Environment) Set(name string, v Value) {
	env.vars[name] = v
}

func (env *Environment) Delete(name string) {
	delete(env.vars, name)
}

func (env *Environment) Has(name string) bool {
	_, ok := env.vars[name]
	return ok
}

func (env *Environment) Len() int { return len(env.vars) }

// Names returns the bound names in sorted order.
func (env *Environment) Names() []string {
	return sortedKeys(env.vars)
}

// Snapshot copies every binding except the excluded names.
func (env *Environment) Snapshot(exclude []string) map[string]Value {
	snap := make(map[string]Value, len(env.vars))
	for k, v := range env.vars {
		snap[k] = v
	}
	for _, name := range exclude {
		delete(snap, name)
	}
	return snap
}

// Bindings returns a copy of the whole table.
func (env *Environment) Bindings() map[string]Value {
	return env.Snapshot(nil)
}

type savedBinding struct {
	name    string
	old     Value
	existed bool
}

// frame records every binding made on behalf of one call, loop or scoped
// form so they can be undone in reverse order.
type frame struct {
	env   *Environment
	saved []savedBinding
}

func (env *Environment) newFrame() *frame {
	return &frame{env: env}
}

func (f *frame) bind(name string, v Value) {
	old, existed := f.env.vars[name]
	f.saved = append(f.saved, savedBinding{name: name, old: old, existed: existed})
	f.env.vars[name] = v
}

// unwind restores each overwritten name to its prior value and removes
// names that did not exist before the frame bound them.
func (f *frame) unwind() {
	for i := len(f.saved) - 1; i >= 0; i-- {
		s := f.saved[i]
		if s.existed {
			f.env.vars[s.name] = s.old
		} else {
			delete(f.env.vars, s.name)
		}
	}
	f.saved = f.saved[:0]
}
