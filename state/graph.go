package state

import (
	"fmt"
	"slices"
	"strings"
)

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	line := make([]string, 0)
	for _, sym := range strings.Split(strings.TrimSpace(s), ",") {
		x := strings.TrimSpace(sym)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	slices.Sort(line)
	return line, nil
}

/*
ParseGraph reads the adjacency of the network. Each line is either a group definition or a link list:

Group1 = node1, node2, node3

Group2 = Group1, node4 // groups may contain other groups

Group1, Group2, OtherNode // every member of each symbol is linked to every member of the others, but not within a group

Group1, Group1 // every node in Group1 is linked to every other

node8, node9 // node8 and node9 are neighbours

nodes is the set of terminal symbols. The result is sorted and free of duplicates.
*/
func ParseGraph(graph []string, nodes []string) ([]Pair[NodeId, NodeId], error) {
	symbols := slices.Clone(nodes)
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		grp, _, isGroup := strings.Cut(line, "=")
		if !isGroup {
			continue
		}
		if strings.Count(line, "=") != 1 {
			return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
		}
		grp = strings.TrimSpace(grp)
		if slices.Contains(nodes, grp) {
			return nil, fmt.Errorf("group name must not be a node name: %s", grp)
		}
		symbols = append(symbols, grp)
	}
	slices.Sort(symbols)
	symbols = slices.Compact(symbols)

	groups := make(map[string][]string)
	links := make([]Pair[string, string], 0)
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if grp, members, isGroup := strings.Cut(line, "="); isGroup {
			grp = strings.TrimSpace(grp)
			if _, ok := groups[grp]; ok {
				return nil, fmt.Errorf("duplicate group name: %s", grp)
			}
			lst, err := parseSymbolList(members, symbols)
			if err != nil {
				return nil, err
			}
			groups[grp] = lst
			continue
		}
		names, err := parseSymbolList(line, symbols)
		if err != nil {
			return nil, err
		}
		if len(names) < 2 {
			return nil, fmt.Errorf("invalid pairing, %v", names)
		}
		for i := range names {
			for j := i + 1; j < len(names); j++ {
				links = append(links, MakeSortedPair(names[i], names[j]))
			}
		}
	}

	ex := expander{nodes: nodes, groups: groups, done: make(map[string][]NodeId), visiting: make(map[string]bool)}
	for grp := range groups {
		if _, err := ex.expand(grp); err != nil {
			return nil, err
		}
	}

	pairings := make([]Pair[NodeId, NodeId], 0)
	for _, link := range links {
		xs, _ := ex.expand(link.V1)
		ys, _ := ex.expand(link.V2)
		for _, x := range xs {
			for _, y := range ys {
				if x != y {
					pairings = append(pairings, MakeSortedPair(x, y))
				}
			}
		}
	}
	SortPairs(pairings)
	return slices.Compact(pairings), nil
}

type expander struct {
	nodes    []string
	groups   map[string][]string
	done     map[string][]NodeId
	visiting map[string]bool
}

// expand resolves a symbol to the sorted set of nodes it denotes
func (e *expander) expand(sym string) ([]NodeId, error) {
	if slices.Contains(e.nodes, sym) {
		return []NodeId{NodeId(sym)}, nil
	}
	if res, ok := e.done[sym]; ok {
		return res, nil
	}
	if e.visiting[sym] {
		cycle := make([]string, 0)
		for g, v := range e.visiting {
			if v {
				cycle = append(cycle, g)
			}
		}
		slices.Sort(cycle)
		return nil, fmt.Errorf("cycle detected in graph: %v", cycle)
	}
	e.visiting[sym] = true
	res := make([]NodeId, 0)
	for _, member := range e.groups[sym] {
		sub, err := e.expand(member)
		if err != nil {
			return nil, err
		}
		res = append(res, sub...)
	}
	e.visiting[sym] = false
	slices.Sort(res)
	res = slices.Compact(res)
	e.done[sym] = res
	return res, nil
}
