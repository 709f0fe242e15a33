package store

// Migrate transforms a document to the current schema, one version at a
// time. It is idempotent: migrating an already-current document reports
// migrated=false and changes nothing.
//
// v1 -> v2: records gained an explicit scope (v1 installs were always
// global) and an optional sourcePath. A zero schemaVersion is an early v1
// document written before the field existed.
func Migrate(st State) (State, bool) {
	from := st.SchemaVersion
	if from == 0 {
		from = 1
	}
	if from >= SchemaVersion {
		st.SchemaVersion = SchemaVersion
		return st, st.SchemaVersion != from
	}
	for v := from; v < SchemaVersion; v++ {
		switch v {
		case 1:
			for i := range st.Records {
				if st.Records[i].Scope == "" {
					st.Records[i].Scope = ScopeGlobal
				}
			}
		}
	}
	st.SchemaVersion = SchemaVersion
	return st, true
}
