package runner

import (
	"sort"

	"github.com/0xShonen/babelbit-subnet/pkg/schema"
)

// SelectMiners truncates the registry snapshot to at most max miners. The
// result is ordered by ascending uid so repeated runs over the same snapshot
// pick the same subset; max values of zero or below mean no limit. An empty
// input yields an empty output.
func SelectMiners(miners map[int]schema.Miner, max int) []schema.Miner {
	uids := make([]int, 0, len(miners))
	for uid := range miners {
		uids = append(uids, uid)
	}
	sort.Ints(uids)

	if max > 0 && max < len(uids) {
		uids = uids[:max]
	}

	selected := make([]schema.Miner, 0, len(uids))
	for _, uid := range uids {
		selected = append(selected, miners[uid])
	}
	return selected
}
