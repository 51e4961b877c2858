package ridbag

import (
	"github.com/google/uuid"
)

// Ref is what a bag holds: either a RID of a saved record, or a Placeholder
// for a record that has not been assigned a RID yet. No other types
// implement Ref.
type Ref interface {
	isRef()
	String() string
}

// Placeholder stands for a record created in the current transaction that
// will receive its RID on save. Placeholders are resolved through a Resolver
// when the transaction commits.
type Placeholder uuid.UUID

func NewPlaceholder() Placeholder {
	return Placeholder(uuid.New())
}

func (RID) isRef()         {}
func (Placeholder) isRef() {}

func (p Placeholder) String() string {
	return "#new:" + uuid.UUID(p).String()
}
