package changelog

import "github.com/ppiankov/etlconv/internal/model"

// DiffAttrs compares attribute sets key by key. It returns nil when they are equal.
func DiffAttrs(current, previous model.Attrs) model.Diff {
	diff := make(model.Diff)

	for k, cv := range current {
		pv, ok := previous[k]
		switch {
		case !ok:
			diff[k] = model.AttrChange{Action: model.ActionAdd, Value: cv.Interface()}
		case !cv.Equal(pv):
			diff[k] = model.AttrChange{Action: model.ActionChange, Value: cv.Interface(), Previous: pv.Interface()}
		}
	}

	for k, pv := range previous {
		if _, ok := current[k]; !ok {
			diff[k] = model.AttrChange{Action: model.ActionRemove, Previous: pv.Interface()}
		}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}

// DiffRefs compares reference sets key by key. A changed reference that
// keeps its identity but carries a different timestamp is marked
// SameIdentity: the referenced continuant moved to another revision.
// It returns nil when the sets are equal.
func DiffRefs(current, previous model.Refs) model.Diff {
	diff := make(model.Diff)

	for k, cr := range current {
		pr, ok := previous[k]
		switch {
		case !ok:
			diff[k] = model.AttrChange{Action: model.ActionAdd, Value: cr}
		case cr != pr:
			diff[k] = model.AttrChange{
				Action:       model.ActionChange,
				Value:        cr,
				Previous:     pr,
				SameIdentity: cr.Key() == pr.Key() && (cr.Timestamp != 0 || pr.Timestamp != 0),
			}
		}
	}

	for k, pr := range previous {
		if _, ok := current[k]; !ok {
			diff[k] = model.AttrChange{Action: model.ActionRemove, Previous: pr}
		}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}
