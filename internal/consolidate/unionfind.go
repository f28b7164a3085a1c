package consolidate

import "github.com/MeKo-Tech/labelocr/internal/ocr"

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// envelopes returns the current roots in first-seen order together with the
// bounding rectangle of each root's members.
func (u *unionFind) envelopes(items []item) ([]int, []ocr.Rect) {
	idx := make(map[int]int)
	var roots []int
	var envs []ocr.Rect
	for i, it := range items {
		r := u.find(i)
		j, ok := idx[r]
		if !ok {
			idx[r] = len(roots)
			roots = append(roots, r)
			envs = append(envs, it.rect)
			continue
		}
		envs[j] = envs[j].Union(it.rect)
	}
	return roots, envs
}
