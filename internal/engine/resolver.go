package engine

import (
	"strings"

	"bonusdesk/internal/domain"
)

// DirectoryIndex is a one-shot lookup table over the employee directory.
// Built once per reconciliation run, then queried for every raw reference.
type DirectoryIndex struct {
	byID   map[string]*domain.Employee
	byName map[string]*domain.Employee
}

// NewDirectoryIndex indexes employees by personnel number and by both
// name orderings ("Last, First" and "First Last", case-insensitive).
// On a name collision the first-indexed employee wins, so results are
// deterministic for a given directory ordering.
func NewDirectoryIndex(employees []domain.Employee) *DirectoryIndex {
	idx := &DirectoryIndex{
		byID:   make(map[string]*domain.Employee, len(employees)),
		byName: make(map[string]*domain.Employee, 2*len(employees)),
	}
	for i := range employees {
		e := &employees[i]
		if e.EmployeeID != "" {
			if _, ok := idx.byID[e.EmployeeID]; !ok {
				idx.byID[e.EmployeeID] = e
			}
		}
		last := strings.TrimSpace(e.LastName)
		first := strings.TrimSpace(e.FirstName)
		if first == "" {
			continue
		}
		keys := []string{first}
		if last != "" {
			keys = []string{last + ", " + first, first + " " + last}
		}
		for _, k := range keys {
			k = strings.ToLower(k)
			if _, ok := idx.byName[k]; !ok {
				idx.byName[k] = e
			}
		}
	}
	return idx
}

// Resolve maps a raw approver reference to an employee, or nil when no
// match exists. Tried in order: exact personnel number, the reference as
// written (case-insensitive), the comma form flipped to "First Last", and
// a multi-token reference read as first token = first name, last token =
// last name (middle tokens dropped), in both orderings. A lone first name
// never matches by reordering. "-" is a spreadsheet placeholder for no
// approver and never matches.
func (idx *DirectoryIndex) Resolve(reference string) *domain.Employee {
	ref := strings.TrimSpace(reference)
	if ref == "" || ref == "-" {
		return nil
	}
	if e, ok := idx.byID[ref]; ok {
		return e
	}
	lower := strings.ToLower(ref)
	if e, ok := idx.byName[lower]; ok {
		return e
	}
	if i := strings.Index(ref, ","); i >= 0 {
		last := strings.TrimSpace(ref[:i])
		first := strings.TrimSpace(ref[i+1:])
		if last != "" && first != "" {
			if e, ok := idx.byName[strings.ToLower(first+" "+last)]; ok {
				return e
			}
		}
		return nil
	}
	tokens := strings.Fields(ref)
	if len(tokens) >= 2 {
		first := tokens[0]
		last := tokens[len(tokens)-1]
		if e, ok := idx.byName[strings.ToLower(first+" "+last)]; ok {
			return e
		}
		if e, ok := idx.byName[strings.ToLower(last+", "+first)]; ok {
			return e
		}
	}
	return nil
}
