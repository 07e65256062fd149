package service

import (
	"fmt"
	"sort"
	"strings"
)

// ProblemSet accumulates human-readable validation problems. Problems
// keep their insertion order and duplicates are dropped, so every rule
// group can report freely without checking what earlier groups found.
type ProblemSet struct {
	seen     map[string]struct{}
	problems []string
}

// NewProblemSet creates an empty problem set.
func NewProblemSet() *ProblemSet {
	return &ProblemSet{seen: make(map[string]struct{})}
}

// Add appends a problem unless an identical one was already recorded.
func (ps *ProblemSet) Add(problem string) {
	if _, ok := ps.seen[problem]; ok {
		return
	}
	ps.seen[problem] = struct{}{}
	ps.problems = append(ps.problems, problem)
}

// Addf formats and appends a problem.
func (ps *ProblemSet) Addf(format string, args ...any) {
	ps.Add(fmt.Sprintf(format, args...))
}

// Empty reports whether no problems were recorded.
func (ps *ProblemSet) Empty() bool {
	return len(ps.problems) == 0
}

// Len returns the number of distinct problems.
func (ps *ProblemSet) Len() int {
	return len(ps.problems)
}

// List returns the problems in insertion order.
func (ps *ProblemSet) List() []string {
	return append([]string(nil), ps.problems...)
}

// describeSet renders a set of offending values as "[a, b, c]" in
// sorted order, for messages that aggregate several bad names.
func describeSet(values map[string]struct{}) string {
	items := make([]string, 0, len(values))
	for v := range values {
		items = append(items, v)
	}
	sort.Strings(items)
	return "[" + strings.Join(items, ", ") + "]"
}
