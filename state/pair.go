package state

import (
	"cmp"
	"net/netip"
	"slices"
)

type Pair[Ty1, Ty2 any] struct {
	V1 Ty1
	V2 Ty2
}

type Triple[Ty1, Ty2, Ty3 any] struct {
	V1 Ty1
	V2 Ty2
	V3 Ty3
}

func MakeSortedPair[T cmp.Ordered](a, b T) Pair[T, T] {
	if a < b {
		return Pair[T, T]{a, b}
	}
	return Pair[T, T]{b, a}
}

// SortPairs orders pairs by V1, then V2.
func SortPairs[T1, T2 cmp.Ordered](pairs []Pair[T1, T2]) {
	slices.SortFunc(pairs, func(a, b Pair[T1, T2]) int {
		if c := cmp.Compare(a.V1, b.V1); c != 0 {
			return c
		}
		return cmp.Compare(a.V2, b.V2)
	})
}

// MakeLink orders the endpoints of an undirected link
func MakeLink(a, b netip.Addr) Pair[netip.Addr, netip.Addr] {
	if b.Less(a) {
		return Pair[netip.Addr, netip.Addr]{b, a}
	}
	return Pair[netip.Addr, netip.Addr]{a, b}
}
