package odim

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// fakeGroup implements api.Group over in-memory maps so the decode path can
// be exercised without constructing real HDF5 bytes.
type fakeGroup struct {
	attrs  *fakeAttrs
	vars   map[string]*api.Variable
	groups map[string]*fakeGroup
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{
		attrs:  &fakeAttrs{m: map[string]interface{}{}},
		vars:   map[string]*api.Variable{},
		groups: map[string]*fakeGroup{},
	}
}

func (g *fakeGroup) setAttr(key string, val interface{}) *fakeGroup {
	g.attrs.m[key] = val
	g.attrs.keys = append(g.attrs.keys, key)
	return g
}

func (g *fakeGroup) group(name string) *fakeGroup {
	if sub, ok := g.groups[name]; ok {
		return sub
	}
	sub := newFakeGroup()
	g.groups[name] = sub
	return sub
}

func (g *fakeGroup) Close()                        {}
func (g *fakeGroup) Attributes() api.AttributeMap { return g.attrs }

func (g *fakeGroup) ListVariables() []string {
	names := make([]string, 0, len(g.vars))
	for n := range g.vars {
		names = append(names, n)
	}
	return names
}

func (g *fakeGroup) GetVariable(name string) (*api.Variable, error) {
	v, ok := g.vars[name]
	if !ok {
		return nil, fmt.Errorf("no variable %q", name)
	}
	return v, nil
}

func (g *fakeGroup) GetVarGetter(name string) (api.VarGetter, error) {
	return nil, fmt.Errorf("not implemented")
}

func (g *fakeGroup) ListSubgroups() []string {
	names := make([]string, 0, len(g.groups))
	for n := range g.groups {
		names = append(names, n)
	}
	return names
}

func (g *fakeGroup) GetGroup(name string) (api.Group, error) {
	sub, ok := g.groups[name]
	if !ok {
		return nil, fmt.Errorf("no group %q", name)
	}
	return sub, nil
}

func (g *fakeGroup) ListTypes() []string             { return nil }
func (g *fakeGroup) GetType(string) (string, bool)   { return "", false }
func (g *fakeGroup) GetGoType(string) (string, bool) { return "", false }

// varOf wraps a value the way the reader surfaces datasets.
func varOf(values interface{}) *api.Variable {
	return &api.Variable{Values: values}
}

type fakeAttrs struct {
	keys []string
	m    map[string]interface{}
}

func (a *fakeAttrs) Keys() []string { return a.keys }

func (a *fakeAttrs) Get(key string) (interface{}, bool) {
	v, ok := a.m[key]
	return v, ok
}

func (a *fakeAttrs) GetType(key string) (string, bool)   { return "", false }
func (a *fakeAttrs) GetGoType(key string) (string, bool) { return "", false }
