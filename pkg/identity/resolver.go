package identity

//go:generate mockery -name Directory

import (
	"context"
	"sync"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/mytardis"
)

// Directory is the subset of the repository API that identity resolution
// needs.
type Directory interface {
	GetUserByUsername(ctx context.Context, username string) (mytardis.User, error)
	GetUserByEmail(ctx context.Context, email string) (mytardis.User, error)
	GetGroupByName(ctx context.Context, name string) (mytardis.Group, error)
}

// Resolver looks up folder names in the repository directory, caching every
// outcome. Create one per scan pass: the cache is never invalidated, so a
// long-lived resolver would hide accounts created after it.
type Resolver struct {
	directory Directory

	// matchByEmail switches user lookups from username to email matching.
	matchByEmail bool

	// groupPrefix is prepended to group folder names before lookup.
	groupPrefix string

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

type cacheKey struct {
	kind Kind
	key  string
}

type cacheEntry struct {
	owner Owner
	err   error
}

// NewResolver creates a resolver backed by the given directory.
func NewResolver(directory Directory, matchByEmail bool, groupPrefix string) *Resolver {
	return &Resolver{
		directory:    directory,
		matchByEmail: matchByEmail,
		groupPrefix:  groupPrefix,
		cache:        map[cacheKey]cacheEntry{},
	}
}

// Resolve maps a folder name to its repository identity. A NotFoundError
// means the directory has no such identity, an AmbiguousError that it has
// several; both are cached, since retrying won't change the answer within
// one pass. Transport errors are returned without caching.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, key string) (Owner, error) {
	r.mu.Lock()
	if entry, ok := r.cache[cacheKey{kind, key}]; ok {
		r.mu.Unlock()
		return entry.owner, entry.err
	}
	r.mu.Unlock()

	owner, err := r.lookup(ctx, kind, key)
	if err != nil && errors.IsTransport(err) {
		return Owner{}, err
	}

	r.mu.Lock()
	r.cache[cacheKey{kind, key}] = cacheEntry{owner: owner, err: err}
	r.mu.Unlock()
	return owner, err
}

func (r *Resolver) lookup(ctx context.Context, kind Kind, key string) (Owner, error) {
	switch kind {
	case KindGroup:
		group, err := r.directory.GetGroupByName(ctx, r.groupPrefix+key)
		if err != nil {
			return Owner{}, err
		}
		return Owner{
			ID:   group.ID,
			Kind: KindGroup,
			Name: key,
		}, nil

	default:
		var user mytardis.User
		var err error
		if r.matchByEmail {
			user, err = r.directory.GetUserByEmail(ctx, key)
		} else {
			user, err = r.directory.GetUserByUsername(ctx, key)
		}
		if err != nil {
			return Owner{}, err
		}

		var groups []string
		for _, group := range user.Groups {
			groups = append(groups, group.Name)
		}
		return Owner{
			ID:       user.ID,
			Kind:     KindUser,
			Name:     user.FullName(),
			Username: user.Username,
			Email:    user.Email,
			Groups:   groups,
		}, nil
	}
}
