// Package visibility defines the row predicate that restricts which leads a
// caller may list. Store adapters compile an Expr into their own query
// language; Eval evaluates it against a single lead.
package visibility

import "github.com/Strob0t/leadgate/internal/domain/lead"

// Expr is a visibility predicate over leads.
type Expr interface {
	isExpr()
}

// All matches every lead.
type All struct{}

// None matches no lead.
type None struct{}

// And matches when every term matches.
type And struct {
	Terms []Expr
}

// OpenAssignment matches leads holding an open assignment for UserID.
type OpenAssignment struct {
	UserID string
}

// PipelineIn matches leads whose pipeline is one of Values. An empty list
// matches nothing.
type PipelineIn struct {
	Values []string
}

func (All) isExpr()            {}
func (None) isExpr()           {}
func (And) isExpr()            {}
func (OpenAssignment) isExpr() {}
func (PipelineIn) isExpr()     {}

// AssignmentLookup answers whether a user holds an open assignment on a lead.
type AssignmentLookup func(leadID, userID string) (bool, error)

// Eval evaluates e against l.
func Eval(e Expr, l *lead.Lead, hasOpen AssignmentLookup) (bool, error) {
	switch x := e.(type) {
	case All:
		return true, nil
	case None:
		return false, nil
	case And:
		for _, t := range x.Terms {
			ok, err := Eval(t, l, hasOpen)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpenAssignment:
		return hasOpen(l.ID, x.UserID)
	case PipelineIn:
		for _, v := range x.Values {
			if v == l.Pipeline {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}
