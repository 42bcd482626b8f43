package services

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Target names who a send is addressed to.
type Target struct {
	broadcast bool
	userIDs   []string
}

// Broadcast addresses every user in the directory.
func Broadcast() Target {
	return Target{broadcast: true}
}

// TargetedList addresses an explicit set of user ids.
func TargetedList(userIDs ...string) Target {
	return Target{userIDs: userIDs}
}

// IsBroadcast reports whether the target is the whole directory.
func (t Target) IsBroadcast() bool {
	return t.broadcast
}

// RecipientResolver turns a Target into the concrete recipient set.
type RecipientResolver struct {
	directory UserDirectory
}

// NewRecipientResolver constructs a resolver over directory.
func NewRecipientResolver(directory UserDirectory) (*RecipientResolver, error) {
	if directory == nil {
		return nil, errors.New("recipient resolver: directory is required")
	}
	return &RecipientResolver{directory: directory}, nil
}

// Resolve returns the deduplicated recipient ids. A targeted list that is empty after
// trimming yields ErrEmptyTarget; an empty directory is a valid, empty broadcast.
func (r *RecipientResolver) Resolve(ctx context.Context, target Target) ([]string, error) {
	if !target.broadcast {
		ids := normaliseIDs(target.userIDs)
		if len(ids) == 0 {
			return nil, ErrEmptyTarget
		}
		return ids, nil
	}

	ids, err := r.directory.AllUserIDs(ensureContext(ctx))
	if err != nil {
		return nil, err
	}
	ids = normaliseIDs(ids)
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (r *RecipientResolver) withTx(tx *gorm.DB) *RecipientResolver {
	scoped, ok := r.directory.(txDirectory)
	if !ok || tx == nil {
		return r
	}
	return &RecipientResolver{directory: scoped.WithTx(tx)}
}
