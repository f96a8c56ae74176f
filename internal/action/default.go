package action

import "pcodecore/internal/rules"

// Default builds the action database this module ships out of the box:
// a restart-group root running pool to a fixed point, kept under the
// single group "root" and selected as the database's current root
// (spec.md §4.5's restart-group shape, wired to the concrete rule pool
// spec.md §4.4 describes rather than left abstract).
func Default(pool *rules.Pool) *Database {
	sweep := NewLeaf("rule-sweep", "simplify", Flags{}, func(fc *FuncContext) (bool, bool) {
		result := pool.Apply(fc.RuleCtx)
		return result.Applications > 0, result.BrokeAt == nil
	})
	restart := NewRestartGroup("decompile", "root", Flags{}, 8, sweep)
	universal := NewGroup("universal", "root", Flags{}, false, restart)

	db := NewDatabase(universal)
	db.DefineRoot(GroupList{Name: "default", Groups: []string{"root"}})
	_ = db.SelectRoot("default")
	return db
}
