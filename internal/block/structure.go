package block

// StructKind names the recovered high-level control-flow shape a
// Structured node represents (spec.md §3 "structured block").
type StructKind int

const (
	StructLeaf StructKind = iota
	StructSequence
	StructIfThen
	StructIfThenElse
	StructWhileDo
	StructDoWhile
	StructSwitch
	StructInfiniteLoop
	StructGoto
)

// Structured is one node in the region tree the structuring action
// builds bottom-up over basic blocks.
type Structured struct {
	Kind     StructKind
	Block    *Block        // set only for StructLeaf and StructGoto
	Children []*Structured // sequence order for StructSequence, branch order otherwise
	parent   *Structured
}

func (s *Structured) Parent() *Structured { return s.parent }

func leaf(b *Block) *Structured {
	n := &Structured{Kind: StructLeaf, Block: b}
	b.structParent = n
	return n
}

// Structure repeatedly identifies a sub-graph matching a known region
// template and collapses it to a single Structured node, terminating
// when only one node remains or only irreducible edges remain — those
// are labeled as goto targets (spec.md §4.2 "structuring", §8 scenario
// 6). ComputeDominators must have already run; Structure classifies
// the edges itself.
//
// Structure returns the root of the recovered tree and the list of
// blocks whose incoming edge could not be structured (goto targets).
func (c *CFG) Structure() (*Structured, []*Block) {
	if c.entry == nil {
		return nil, nil
	}
	backEdges := c.ClassifyEdges()
	loopHeaders := map[*Block]bool{}
	for _, h := range c.LoopHeaders(backEdges) {
		loopHeaders[h] = true
	}

	nodes := map[*Block]*Structured{}
	for _, b := range c.blocks {
		nodes[b] = leaf(b)
	}

	var gotoTargets []*Block
	remaining := append([]*Block(nil), c.blocks...)

	progress := true
	for progress && len(remaining) > 1 {
		progress = false

		// while-do / infinite loop: a loop header whose back-edge
		// source is its only loop-body block collapses to a single
		// node; more general loop bodies are left for a later
		// iteration once their internal edges have themselves
		// collapsed to sequences.
		for _, h := range c.LoopHeaders(backEdges) {
			if collapseLoop(c, h, nodes, loopHeaders, &remaining) {
				progress = true
				break
			}
		}
		if progress {
			continue
		}

		// sequence: a block with exactly one successor that has
		// exactly one predecessor merges into it.
		for _, b := range remaining {
			if b == c.entry && len(remaining) == 1 {
				break
			}
			if len(b.out) == 1 && !isBackEdgeSource(b, backEdges) {
				succ := b.out[0].To
				if len(succ.in) == 1 && succ != b {
					merged := &Structured{Kind: StructSequence, Children: []*Structured{nodes[b], nodes[succ]}}
					replaceBlock(c, b, succ, merged, nodes, &remaining)
					progress = true
					break
				}
			}
		}
		if progress {
			continue
		}

		// if-then / if-then-else: a block with two successors, one of
		// which rejoins the other (if-then) or both of which rejoin a
		// common successor (if-then-else).
		for _, b := range remaining {
			if len(b.out) != 2 {
				continue
			}
			a, d := b.out[0].To, b.out[1].To
			if len(a.in) == 1 && len(a.out) == 1 && a.out[0].To == d {
				merged := &Structured{Kind: StructIfThen, Children: []*Structured{nodes[b], nodes[a]}}
				replaceIfRegion(c, b, []*Block{a}, d, merged, nodes, &remaining)
				progress = true
				break
			}
			if len(d.in) == 1 && len(d.out) == 1 && d.out[0].To == a {
				merged := &Structured{Kind: StructIfThen, Children: []*Structured{nodes[b], nodes[d]}}
				replaceIfRegion(c, b, []*Block{d}, a, merged, nodes, &remaining)
				progress = true
				break
			}
			if len(a.in) == 1 && len(d.in) == 1 && len(a.out) == 1 && len(d.out) == 1 && a.out[0].To == d.out[0].To && a != d {
				join := a.out[0].To
				merged := &Structured{Kind: StructIfThenElse, Children: []*Structured{nodes[b], nodes[a], nodes[d]}}
				replaceIfRegion(c, b, []*Block{a, d}, join, merged, nodes, &remaining)
				progress = true
				break
			}
		}
	}

	if len(remaining) == 1 {
		root := nodes[remaining[0]]
		return root, nil
	}

	// Irreducible remainder: every block still unresolved after the
	// template passes above becomes a goto target, and the root is a
	// flat StructGoto node over them. A loop whose blocks have a second
	// entry is not recovered as a loop; its blocks are among the goto
	// targets.
	children := make([]*Structured, 0, len(remaining))
	for _, b := range remaining {
		children = append(children, nodes[b])
		gotoTargets = append(gotoTargets, b)
	}
	root := &Structured{Kind: StructGoto, Children: children}
	return root, gotoTargets
}

func isBackEdgeSource(b *Block, backEdges []*Edge) bool {
	for _, e := range backEdges {
		if e.From == b {
			return true
		}
	}
	return false
}

// collapseLoop collapses a natural loop (header h, body = blocks whose
// only path out of the loop passes through h) into a single
// WhileDo/DoWhile/InfiniteLoop node once its body has already reduced
// to a single back-edge source block.
func collapseLoop(c *CFG, h *Block, nodes map[*Block]*Structured, headers map[*Block]bool, remaining *[]*Block) bool {
	var backSrc *Block
	for _, e := range h.in {
		if e.Kind == EdgeBack {
			backSrc = e.From
		}
	}
	if backSrc == nil {
		return false
	}
	if backSrc == h {
		// tail-less infinite loop / self-loop header
		merged := &Structured{Kind: StructInfiniteLoop, Children: []*Structured{nodes[h]}}
		replaceSelfLoop(c, h, merged, nodes, remaining)
		return true
	}
	if len(backSrc.in) != 1 || backSrc.in[0].From != h {
		return false
	}
	kind := StructWhileDo
	if len(h.out) == 1 {
		kind = StructDoWhile
	}
	merged := &Structured{Kind: kind, Children: []*Structured{nodes[h], nodes[backSrc]}}
	replaceBlock(c, h, backSrc, merged, nodes, remaining)
	return true
}

func replaceSelfLoop(c *CFG, b *Block, merged *Structured, nodes map[*Block]*Structured, remaining *[]*Block) {
	for _, e := range append([]*Edge(nil), b.out...) {
		if e.To == b {
			c.removeEdge(e)
		}
	}
	nodes[b] = merged
}

// replaceBlock merges succ into b's node (b now represents the
// combined region), redirecting succ's out-edges to originate from b
// and removing succ from the live block set.
func replaceBlock(c *CFG, b, succ *Block, merged *Structured, nodes map[*Block]*Structured, remaining *[]*Block) {
	edge := b.out[0]
	c.removeEdge(edge)
	for _, e := range append([]*Edge(nil), succ.out...) {
		c.removeEdge(e)
		c.addEdge(b, e.To)
	}
	for _, e := range append([]*Edge(nil), succ.in...) {
		c.removeEdge(e)
	}
	nodes[b] = merged
	*remaining = removeBlockPtr(*remaining, succ)
}

// replaceIfRegion merges b plus its arm block(s) into a single node
// representing the if-region, redirecting the join block's in-edge(s)
// to originate from b.
func replaceIfRegion(c *CFG, b *Block, arms []*Block, join *Block, merged *Structured, nodes map[*Block]*Structured, remaining *[]*Block) {
	for _, e := range append([]*Edge(nil), b.out...) {
		c.removeEdge(e)
	}
	for _, arm := range arms {
		for _, e := range append([]*Edge(nil), arm.out...) {
			c.removeEdge(e)
		}
		for _, e := range append([]*Edge(nil), arm.in...) {
			c.removeEdge(e)
		}
		*remaining = removeBlockPtr(*remaining, arm)
	}
	c.addEdge(b, join)
	nodes[b] = merged
}
