package message

// DestinationSetKey is the reserved sourceMap key under which the
// dispatch pipeline stores the DestinationSet for the currently running
// message, so operator filter/transformer scripts can read and mutate it
// (spec §4.1 step 7).
const DestinationSetKey = "destinationSet"

// DestinationSet is the set of destination metaDataIds still eligible for
// dispatch after the source filter/transformer has run. Operator scripts
// remove entries (by id; by name is supported but undefined under
// duplicate names, see spec §9) to skip specific destinations.
type DestinationSet struct {
	ids       map[int]struct{}
	nameToID  map[string]int
}

// NewDestinationSet seeds a DestinationSet with every destination's
// metaDataId and name, in declaration order.
func NewDestinationSet(ids []int, names []string) *DestinationSet {
	ds := &DestinationSet{
		ids:      make(map[int]struct{}, len(ids)),
		nameToID: make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		ds.ids[id] = struct{}{}
		if i < len(names) {
			// Last writer wins for a duplicate name; name-based removal
			// is documented as unsupported under duplicate names.
			ds.nameToID[names[i]] = id
		}
	}
	return ds
}

// Remove excludes a destination by metaDataId.
func (ds *DestinationSet) Remove(id int) {
	delete(ds.ids, id)
}

// RemoveByName excludes a destination by name. Undefined if two
// destinations share a name (whichever was registered last in
// NewDestinationSet wins) — operator scripts should prefer Remove.
func (ds *DestinationSet) RemoveByName(name string) {
	if id, ok := ds.nameToID[name]; ok {
		ds.Remove(id)
	}
}

// Contains reports whether a destination is still eligible for dispatch.
func (ds *DestinationSet) Contains(id int) bool {
	_, ok := ds.ids[id]
	return ok
}

// Excluded reports the destinations that were removed from the given
// declared set, for synthesizing their FILTERED accounting rows (spec
// §4.1 step 12).
func (ds *DestinationSet) Excluded(declared []int) []int {
	var out []int
	for _, id := range declared {
		if !ds.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
