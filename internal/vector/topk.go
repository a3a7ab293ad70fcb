package vector

import "sort"

// topK keeps the k best hits seen so far in a min-heap whose root is the worst kept hit.
type topK struct {
	k     int
	items []Hit
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]Hit, 0, k)}
}

// worse reports whether a ranks below b: lower score, or equal score and higher row.
func worse(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Row > b.Row
}

// offer considers a candidate. Once full, a candidate replaces the root only when its
// score is strictly greater, so among equal scores the earliest rows offered are kept.
func (t *topK) offer(row int, score float32) {
	if len(t.items) < t.k {
		t.items = append(t.items, Hit{Row: row, Score: score})
		t.up(len(t.items) - 1)
		return
	}
	if score > t.items[0].Score {
		t.items[0] = Hit{Row: row, Score: score}
		t.down(0)
	}
}

// sorted returns the kept hits by descending score, ties by ascending row.
func (t *topK) sorted() []Hit {
	out := make([]Hit, len(t.items))
	copy(out, t.items)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out
}

func (t *topK) up(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !worse(t.items[i], t.items[p]) {
			return
		}
		t.items[i], t.items[p] = t.items[p], t.items[i]
		i = p
	}
}

func (t *topK) down(i int) {
	n := len(t.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		m := l
		if r := l + 1; r < n && worse(t.items[r], t.items[l]) {
			m = r
		}
		if !worse(t.items[m], t.items[i]) {
			return
		}
		t.items[i], t.items[m] = t.items[m], t.items[i]
		i = m
	}
}
