// Package scope defines the addressing key that partitions conversations.
//
// Every conversation is bound to exactly one scope: the whole library, a
// single collection, or a single content item. The scope is the sole lookup
// key for session state; it never owns anything else.
package scope

import "fmt"

// Kind identifies which slice of the user's library a scope addresses.
type Kind string

const (
	KindGlobal     Kind = "global"
	KindCollection Kind = "collection"
	KindContent    Kind = "content"
)

// Scope is an immutable value; equality is structural, so it can be used
// directly as a map key.
type Scope struct {
	Kind Kind
	ID   string // empty for KindGlobal
}

// Global returns the whole-library scope.
func Global() Scope { return Scope{Kind: KindGlobal} }

// Collection returns the scope for a single collection.
func Collection(id string) Scope { return Scope{Kind: KindCollection, ID: id} }

// Content returns the scope for a single content item.
func Content(id string) Scope { return Scope{Kind: KindContent, ID: id} }

// Key returns a stable string form suitable for logging and request payloads.
func (s Scope) Key() string {
	if s.Kind == KindGlobal || s.Kind == "" {
		return string(KindGlobal)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

func (s Scope) String() string { return s.Key() }

// IsZero reports whether no scope has been resolved yet.
func (s Scope) IsZero() bool { return s.Kind == "" }

// Selection describes what the host UI currently has focused. Zero or more
// fields may be set; Resolve applies the priority rules.
type Selection struct {
	ContentID    string
	CollectionID string
}

// Resolve maps a UI selection to the scope addressing its conversation.
// A focused content item wins over a selected collection, which wins over
// the global library view.
func Resolve(sel Selection) Scope {
	switch {
	case sel.ContentID != "":
		return Content(sel.ContentID)
	case sel.CollectionID != "":
		return Collection(sel.CollectionID)
	default:
		return Global()
	}
}
