package importer

// remapTable maps bundle-local ids to the ids of records created in the
// target system during this run. Namespaced by kind so bundles whose kinds
// reuse id values cannot cross-resolve. Original ids are never overwritten;
// the new id sits alongside them here.
type remapTable struct {
	assets   map[string]int64
	cards    map[string]int64
	answers  map[string]int64
	sessions map[string]int64
}

func newRemapTable() *remapTable {
	return &remapTable{
		assets:   make(map[string]int64),
		cards:    make(map[string]int64),
		answers:  make(map[string]int64),
		sessions: make(map[string]int64),
	}
}
