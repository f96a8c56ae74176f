package block

// ComputeDominators runs the iterative Cooper–Harvey–Kennedy fixed-point
// algorithm over the CFG's reverse postorder, recording each block's
// immediate dominator and dominator depth (spec.md §4.2 "dominator
// calculation").
func (c *CFG) ComputeDominators() {
	if c.entry == nil {
		return
	}
	order := c.reversePostorder()
	rpoIndex := make(map[*Block]int, len(order))
	for i, b := range order {
		rpoIndex[b] = i
	}

	idom := make(map[*Block]*Block, len(order))
	idom[c.entry] = c.entry

	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if b == c.entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.Predecessors() {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, rpoIndex)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	for _, b := range order {
		if b == c.entry {
			b.domParent = nil
			b.domDepth = 0
			continue
		}
		b.domParent = idom[b]
	}
	for _, b := range order {
		if b == c.entry {
			continue
		}
		depth := 0
		for p := b.domParent; p != nil && p != c.entry; p = p.domParent {
			depth++
		}
		b.domDepth = depth + 1
	}
}

func intersect(a, b *Block, idom map[*Block]*Block, rpo map[*Block]int) *Block {
	for a != b {
		for rpo[a] > rpo[b] {
			a = idom[a]
		}
		for rpo[b] > rpo[a] {
			b = idom[b]
		}
	}
	return a
}

func (c *CFG) reversePostorder() []*Block {
	visited := make(map[*Block]bool, len(c.blocks))
	var post []*Block
	var visit func(*Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Successors() {
			visit(s)
		}
		post = append(post, b)
	}
	visit(c.entry)
	// reverse
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// Dominates reports whether b dominates other (reflexively: a block
// dominates itself).
func (b *Block) Dominates(other *Block) bool {
	for x := other; x != nil; x = x.domParent {
		if x == b {
			return true
		}
	}
	return false
}

// IDom returns b's immediate dominator, or nil for the entry block.
func (b *Block) IDom() *Block { return b.domParent }
