// paramtrial.go implements the parameter-trial realism walk of spec.md
// §4.6: for each candidate input Varnode reaching a CALL, CALLIND, or
// RETURN site, a bounded ancestry walk decides whether the candidate is
// a genuine incoming parameter, a locally computed value that only
// resembles one, or a case whose realism depends on which control-flow
// path executed and so needs a later retest once more of the function
// has been analyzed.
package decompile

import (
	"sort"

	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// ParamVerdict is the trial outcome for one candidate parameter.
type ParamVerdict int

const (
	ParamAccept ParamVerdict = iota
	ParamReject
	ParamRetest
)

func (v ParamVerdict) String() string {
	switch v {
	case ParamAccept:
		return "accept"
	case ParamReject:
		return "reject"
	case ParamRetest:
		return "retest"
	default:
		return "unknown"
	}
}

// ParamCandidate is one storage location trialed as a parameter.
type ParamCandidate struct {
	Storage  varnode.Storage
	Variable *varnode.Variable
	Verdict  ParamVerdict
}

// ancestryDepth bounds the definer-chain walk ancestryVerdict performs.
// Real parameter-realism ancestry chains are short (a handful of COPYs
// at most before hitting either an entry input or a computed value);
// anything longer is treated as computed rather than walked further.
const ancestryDepth = 64

// trialParameters walks every CALL/CALLIND/RETURN site's inputs and
// trials each distinct register/stack storage read there at most once,
// per spec.md §8 scenario 4 ("parameter trial rejection").
func trialParameters(store *varnode.Store) []ParamCandidate {
	seen := map[varnode.Storage]bool{}
	var out []ParamCandidate

	for _, op := range candidateSites(store) {
		for i, in := range op.Inputs() {
			if in == nil || i == 0 && (op.Opcode() == pcode.Call || op.Opcode() == pcode.CallInd) {
				continue // slot 0 is the call target, never a parameter candidate
			}
			if !isParameterStorage(in.Storage()) || seen[in.Storage()] {
				continue
			}
			seen[in.Storage()] = true
			out = append(out, ParamCandidate{Storage: in.Storage(), Variable: in, Verdict: ancestryVerdict(in, ancestryDepth)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Storage.Offset < out[j].Storage.Offset })
	return out
}

func candidateSites(store *varnode.Store) []*varnode.Operation {
	var out []*varnode.Operation
	out = append(out, store.ByOpcode(pcode.Call)...)
	out = append(out, store.ByOpcode(pcode.CallInd)...)
	out = append(out, store.ByOpcode(pcode.Return)...)
	return out
}

// isParameterStorage restricts candidates to the storage kinds a
// calling convention could plausibly assign a parameter to: registers
// and the stack. Constants and unique-space temporaries are never
// parameters.
func isParameterStorage(st varnode.Storage) bool {
	return st.Space == varnode.SpaceRegister || st.Space == varnode.SpaceStack
}

// ancestryVerdict walks v's definer chain up to maxDepth operations.
//
//   - an input with no definer anywhere in the function is live at
//     entry unconditionally: accept.
//   - a chain that terminates at a MULTIEQUAL merging an
//     unconditionally-live-at-entry path with a locally-computed path
//     is realism-ambiguous until the caller's own analysis narrows
//     which path executes: retest.
//   - a chain that terminates at any other defining op within the
//     depth bound is a locally computed value, not a parameter: reject.
//   - exceeding the depth bound without resolving either way is
//     treated conservatively as reject.
func ancestryVerdict(v *varnode.Variable, maxDepth int) ParamVerdict {
	depth := 0
	for {
		if v.Definer() == nil {
			if v.IsConstant() {
				return ParamReject
			}
			return ParamAccept
		}
		def := v.Definer()
		if def.Opcode() == pcode.MultiEqual {
			sawEntry, sawComputed := false, false
			for _, in := range def.Inputs() {
				if in == nil {
					continue
				}
				if in.Definer() == nil && !in.IsConstant() {
					sawEntry = true
				} else {
					sawComputed = true
				}
			}
			if sawEntry && sawComputed {
				return ParamRetest
			}
			if sawEntry {
				return ParamAccept
			}
			return ParamReject
		}
		if def.Opcode() == pcode.Copy && len(def.Inputs()) == 1 && def.Input(0) != nil {
			v = def.Input(0)
			depth++
			if depth >= maxDepth {
				return ParamReject
			}
			continue
		}
		return ParamReject
	}
}
