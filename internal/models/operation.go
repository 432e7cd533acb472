package models

import "fmt"

// OpKind tags the variant of an Operation.
type OpKind int

const (
	OpCreateList OpKind = iota
	OpAddMember
	OpRemoveMember
	OpSetSummary
)

func (k OpKind) String() string {
	switch k {
	case OpCreateList:
		return "create-list"
	case OpAddMember:
		return "add-member"
	case OpRemoveMember:
		return "remove-member"
	case OpSetSummary:
		return "set-summary"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Operation is one planned mutation against the external list store.
// Operations are data, not side effects: the reconciler produces them and
// the apply step (or a dry-run printer) consumes them exactly once.
//
// Field usage by kind:
//
//	CreateList:   List, Members, Summary
//	AddMember:    List, ListID (empty for lists created this run), Repo
//	RemoveMember: List, ListID, Repo
//	SetSummary:   List, ListID, Summary
type Operation struct {
	Kind    OpKind   `json:"kind"`
	List    string   `json:"list"`
	ListID  string   `json:"list_id,omitempty"`
	Repo    string   `json:"repo,omitempty"`
	Members []string `json:"members,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

func (o Operation) String() string {
	switch o.Kind {
	case OpCreateList:
		return fmt.Sprintf("create-list %q (%d repos)", o.List, len(o.Members))
	case OpAddMember:
		return fmt.Sprintf("add %s -> %q", o.Repo, o.List)
	case OpRemoveMember:
		return fmt.Sprintf("remove %s from %q", o.Repo, o.List)
	case OpSetSummary:
		return fmt.Sprintf("set summary of %q (%d chars)", o.List, len(o.Summary))
	default:
		return o.Kind.String()
	}
}
