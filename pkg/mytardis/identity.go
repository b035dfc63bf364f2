package mytardis

import (
	"context"
	"net/url"

	"github.com/datadock/datadock/pkg/errors"
)

type userList struct {
	Meta    listMeta `json:"meta"`
	Objects []User   `json:"objects"`
}

type groupList struct {
	Meta    listMeta `json:"meta"`
	Objects []Group  `json:"objects"`
}

// GetUserByUsername looks up the user account with the given username.
// Returns a NotFoundError when no account matches and an AmbiguousError when
// more than one does.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (User, error) {
	params := url.Values{}
	params.Set("username", username)
	return c.getUser(ctx, "get user by username", params, username)
}

// GetUserByEmail looks up the user account with the given email address,
// matched case-insensitively.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (User, error) {
	params := url.Values{}
	params.Set("email__iexact", email)
	return c.getUser(ctx, "get user by email", params, email)
}

func (c *Client) getUser(ctx context.Context, op string, params url.Values,
	key string) (User, error) {

	var list userList
	if err := c.getJSON(ctx, op, "/api/v1/user/", params, &list); err != nil {
		return User{}, err
	}

	switch {
	case list.Meta.TotalCount == 0:
		return User{}, errors.NotFoundError{Kind: "user", Key: key}
	case list.Meta.TotalCount > 1:
		return User{}, errors.AmbiguousError{
			Kind: "user", Key: key, Count: list.Meta.TotalCount}
	}
	return list.Objects[0], nil
}

// GetGroupByName looks up the access group with exactly the given name. The
// caller applies any configured group name prefix before calling.
func (c *Client) GetGroupByName(ctx context.Context, name string) (Group, error) {
	params := url.Values{}
	params.Set("name", name)

	var list groupList
	err := c.getJSON(ctx, "get group by name", "/api/v1/group/", params, &list)
	if err != nil {
		return Group{}, err
	}

	switch {
	case list.Meta.TotalCount == 0:
		return Group{}, errors.NotFoundError{Kind: "group", Key: name}
	case list.Meta.TotalCount > 1:
		return Group{}, errors.AmbiguousError{
			Kind: "group", Key: name, Count: list.Meta.TotalCount}
	}
	return list.Objects[0], nil
}
