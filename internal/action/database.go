package action

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GroupList is the set of group names a named root action keeps when
// cloned from the universal action (spec.md §4.5 "a group list (the
// set of group names to keep)"). ParseGroupLists decodes group lists
// from a YAML document.
type GroupList struct {
	Name   string   `yaml:"name"`
	Groups []string `yaml:"groups"`
}

// ParseGroupLists decodes a document containing one or more named group
// lists.
func ParseGroupLists(doc []byte) ([]GroupList, error) {
	var out []GroupList
	if err := yaml.Unmarshal(doc, &out); err != nil {
		return nil, errors.Wrap(err, "action: parsing group-list document")
	}
	return out, nil
}

func (g GroupList) keeps(group string) bool {
	for _, k := range g.Groups {
		if k == group {
			return true
		}
	}
	return false
}

// Database keeps a single universal action containing every sub-action
// and rule known to the build, plus named root actions derived from it
// by group-list filtering (spec.md §4.5 "action database").
type Database struct {
	universal *GroupAction
	roots     map[string]Action
	current   string
}

// NewDatabase creates a database whose universal action is universal.
func NewDatabase(universal *GroupAction) *Database {
	return &Database{universal: universal, roots: map[string]Action{}}
}

// DefineRoot derives and registers a named root action by keeping only
// the universal action's children whose group is in list.Groups. Root
// derivation is not recursive: group filtering happens at the
// universal action's direct children, matching the flat group
// vocabulary spec.md §6 exposes to the host ("select current root
// action by name").
func (d *Database) DefineRoot(list GroupList) {
	kept := make([]Action, 0, len(d.universal.Children))
	for _, child := range d.universal.Children {
		if list.keeps(child.Group()) {
			kept = append(kept, child)
		}
	}
	root := NewGroup(list.Name, "root", Flags{}, false, kept...)
	d.roots[list.Name] = root
}

// SelectRoot sets the database's single current root action by name
// (spec.md §4.5 "The database has exactly one current root action,
// settable by name").
func (d *Database) SelectRoot(name string) error {
	if _, ok := d.roots[name]; !ok {
		return errors.Errorf("action: no root action named %q", name)
	}
	d.current = name
	return nil
}

// Current returns the currently selected root action.
func (d *Database) Current() (Action, error) {
	if d.current == "" {
		return nil, errors.New("action: no root action selected")
	}
	return d.roots[d.current], nil
}

// Universal exposes the database's universal action, e.g. for
// breakpoint configuration by name across every registered rule/action.
func (d *Database) Universal() *GroupAction { return d.universal }
