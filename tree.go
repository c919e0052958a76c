package relq

import (
	"slices"

	"github.com/syssam/relq/contrib/dataloader"
)

// BuildTree arranges the records of a self-referential entity into a
// hierarchy. Each record whose parentColumn matches the idColumn of another
// record of c is attached under it as the children relation, and the
// remaining records are returned as roots in their original order. Every
// record receives a children collection, empty for leaves.
//
// A record that is its own ancestor fails with a CycleError naming it.
func BuildTree(c *Collection, idColumn, parentColumn, children string) (*Collection, error) {
	byID := make(map[any]*Record, c.Len())
	for _, r := range c.Records {
		id := dataloader.Normalize(r.Values[idColumn])
		if _, ok := byID[id]; !ok && id != nil {
			byID[id] = r
		}
	}
	parent := func(r *Record) *Record {
		key := dataloader.Normalize(r.Values[parentColumn])
		if key == nil {
			return nil
		}
		return byID[key]
	}
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[*Record]int, c.Len())
	for _, r := range c.Records {
		var path []*Record
		cur := r
		for cur != nil && state[cur] == 0 {
			state[cur] = visiting
			path = append(path, cur)
			cur = parent(cur)
		}
		if cur != nil && state[cur] == visiting {
			ids := make([]any, 0, len(path))
			for i := len(path) - 1; i >= 0; i-- {
				ids = append(ids, path[i].Values[idColumn])
				if path[i] == cur {
					break
				}
			}
			slices.Reverse(ids)
			return nil, &CycleError{ID: cur.Values[idColumn], Path: ids}
		}
		for _, p := range path {
			state[p] = done
		}
	}
	var (
		roots = &Collection{Entity: c.Entity}
		kids  = make(map[*Record][]*Record)
	)
	for _, r := range c.Records {
		if p := parent(r); p != nil {
			kids[p] = append(kids[p], r)
		} else {
			roots.Records = append(roots.Records, r)
		}
	}
	for _, r := range c.Records {
		r.SetRelation(children, &Collection{Entity: c.Entity, Records: kids[r]})
	}
	return roots, nil
}

// Flatten walks the children relation of roots depth first and returns
// every record, parents before their children. Records without the
// relation loaded are leaves. A record reached again below itself fails
// with a CycleError.
func Flatten(roots *Collection, children string) (*Collection, error) {
	var (
		out     = &Collection{Entity: roots.Entity}
		stack   []*Record
		onStack = make(map[*Record]bool)
	)
	var walk func(r *Record) error
	walk = func(r *Record) error {
		if onStack[r] {
			var ids []any
			for i := len(stack) - 1; i >= 0; i-- {
				ids = append(ids, stack[i].ID())
				if stack[i] == r {
					break
				}
			}
			slices.Reverse(ids)
			return &CycleError{ID: r.ID(), Path: ids}
		}
		onStack[r] = true
		stack = append(stack, r)
		out.Records = append(out.Records, r)
		if kids, err := r.Many(children); err == nil {
			for _, k := range kids.Records {
				if err := walk(k); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		onStack[r] = false
		return nil
	}
	for _, r := range roots.Records {
		if err := walk(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}
