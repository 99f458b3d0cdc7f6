package storage

import (
	"sort"

	"github.com/mcoot/bananaclick/internal/model"
)

// Apply filters, orders and truncates users according to opts.
// Backends that cannot express the query natively use this on a full scan.
func Apply(users []*model.User, opts ListOptions) []*model.User {
	out := make([]*model.User, 0, len(users))
	for _, u := range users {
		if opts.Role != "" && u.Role != opts.Role {
			continue
		}
		out = append(out, u)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if opts.ByCounter && out[i].Counter != out[j].Counter {
			return out[i].Counter > out[j].Counter
		}
		return out[i].Seq < out[j].Seq
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
