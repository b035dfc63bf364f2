package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/identity/mocks"
	"github.com/datadock/datadock/pkg/mytardis"
)

func TestResolveUser(t *testing.T) {
	directory := &mocks.Directory{}
	directory.On("GetUserByUsername", mock.Anything, "alice").Return(
		mytardis.User{
			ID:        42,
			Username:  "alice",
			FirstName: "Alice",
			LastName:  "Jones",
			Email:     "alice@example.edu",
			Groups:    []mytardis.Group{{ID: 3, Name: "TestFacility-Group1"}},
		}, nil).Once()

	resolver := NewResolver(directory, false, "")
	ctx := context.Background()

	owner, err := resolver.Resolve(ctx, KindUser, "alice")
	assert.NoError(t, err)
	assert.Equal(t, Owner{
		ID:       42,
		Kind:     KindUser,
		Name:     "Alice Jones",
		Username: "alice",
		Email:    "alice@example.edu",
		Groups:   []string{"TestFacility-Group1"},
	}, owner)

	// The second resolve must come from the cache. The mock would fail the
	// test if the directory were queried again.
	cached, err := resolver.Resolve(ctx, KindUser, "alice")
	assert.NoError(t, err)
	assert.Equal(t, owner, cached)
	directory.AssertExpectations(t)
}

func TestResolveUserByEmail(t *testing.T) {
	directory := &mocks.Directory{}
	directory.On("GetUserByEmail", mock.Anything, "alice@example.edu").Return(
		mytardis.User{ID: 42, Username: "alice", Email: "alice@example.edu"}, nil)

	resolver := NewResolver(directory, true, "")
	owner, err := resolver.Resolve(context.Background(), KindUser, "alice@example.edu")
	assert.NoError(t, err)
	assert.Equal(t, 42, owner.ID)
	assert.Equal(t, "alice", owner.Name)
	directory.AssertExpectations(t)
}

func TestResolveCachesNotFound(t *testing.T) {
	directory := &mocks.Directory{}
	directory.On("GetUserByUsername", mock.Anything, "ghost").Return(
		mytardis.User{}, errors.NotFoundError{Kind: "user", Key: "ghost"}).Once()

	resolver := NewResolver(directory, false, "")
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, KindUser, "ghost")
	assert.True(t, errors.IsNotFound(err))

	_, err = resolver.Resolve(ctx, KindUser, "ghost")
	assert.True(t, errors.IsNotFound(err))
	directory.AssertExpectations(t)
}

func TestResolveDoesNotCacheTransportErrors(t *testing.T) {
	directory := &mocks.Directory{}
	directory.On("GetUserByUsername", mock.Anything, "alice").Return(
		mytardis.User{}, errors.NewTransportError(
			"get user by username", errors.New("connection refused"))).Once()
	directory.On("GetUserByUsername", mock.Anything, "alice").Return(
		mytardis.User{ID: 42, Username: "alice"}, nil).Once()

	resolver := NewResolver(directory, false, "")
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, KindUser, "alice")
	assert.True(t, errors.IsTransport(err))

	owner, err := resolver.Resolve(ctx, KindUser, "alice")
	assert.NoError(t, err)
	assert.Equal(t, 42, owner.ID)
	directory.AssertExpectations(t)
}

func TestResolveGroupAppliesPrefix(t *testing.T) {
	directory := &mocks.Directory{}
	directory.On("GetGroupByName", mock.Anything, "TestFacility-Group1").Return(
		mytardis.Group{ID: 3, Name: "TestFacility-Group1"}, nil)

	resolver := NewResolver(directory, false, "TestFacility-")
	owner, err := resolver.Resolve(context.Background(), KindGroup, "Group1")
	assert.NoError(t, err)
	assert.Equal(t, Owner{ID: 3, Kind: KindGroup, Name: "Group1"}, owner)
	directory.AssertExpectations(t)
}

func TestPlaceholder(t *testing.T) {
	owner := Placeholder("unknown-user")
	assert.True(t, owner.NotInRepository)
	assert.Equal(t, "USER NOT FOUND IN MYTARDIS", owner.Name)
	assert.Equal(t, "unknown-user", owner.Username)
}
