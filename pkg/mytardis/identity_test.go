package mytardis

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datadock/datadock/pkg/errors"
)

func TestGetUserByUsername(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/user/", r.URL.Path)
			switch r.URL.Query().Get("username") {
			case "alice":
				fmt.Fprint(w, `{
					"meta": {"total_count": 1},
					"objects": [{
						"id": 42,
						"username": "alice",
						"first_name": "Alice",
						"last_name": "Jones",
						"email": "alice@example.edu",
						"groups": [{"id": 3, "name": "TestFacility-Group1"}]
					}]
				}`)
			case "duplicated":
				fmt.Fprint(w, `{
					"meta": {"total_count": 2},
					"objects": [
						{"id": 1, "username": "duplicated"},
						{"id": 2, "username": "duplicated"}
					]
				}`)
			default:
				fmt.Fprint(w, `{"meta": {"total_count": 0}, "objects": []}`)
			}
		}))
	defer server.Close()

	ctx := context.Background()

	user, err := client.GetUserByUsername(ctx, "alice")
	assert.NoError(t, err)
	assert.Equal(t, 42, user.ID)
	assert.Equal(t, "Alice Jones", user.FullName())
	assert.Equal(t, []Group{{ID: 3, Name: "TestFacility-Group1"}}, user.Groups)

	_, err = client.GetUserByUsername(ctx, "bob")
	assert.Equal(t, errors.NotFoundError{Kind: "user", Key: "bob"},
		errors.RootCause(err))

	_, err = client.GetUserByUsername(ctx, "duplicated")
	assert.Equal(t,
		errors.AmbiguousError{Kind: "user", Key: "duplicated", Count: 2},
		errors.RootCause(err))
}

func TestGetUserByEmail(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "alice@example.edu", r.URL.Query().Get("email__iexact"))
			fmt.Fprint(w, `{
				"meta": {"total_count": 1},
				"objects": [{"id": 42, "username": "alice"}]
			}`)
		}))
	defer server.Close()

	user, err := client.GetUserByEmail(context.Background(), "alice@example.edu")
	assert.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	// A user with no name set falls back to the username for display.
	assert.Equal(t, "alice", user.FullName())
}

func TestGetGroupByName(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/group/", r.URL.Path)
			if r.URL.Query().Get("name") == "TestFacility-Group1" {
				fmt.Fprint(w, `{
					"meta": {"total_count": 1},
					"objects": [{"id": 3, "name": "TestFacility-Group1"}]
				}`)
			} else {
				fmt.Fprint(w, `{"meta": {"total_count": 0}, "objects": []}`)
			}
		}))
	defer server.Close()

	ctx := context.Background()

	group, err := client.GetGroupByName(ctx, "TestFacility-Group1")
	assert.NoError(t, err)
	assert.Equal(t, Group{ID: 3, Name: "TestFacility-Group1"}, group)

	_, err = client.GetGroupByName(ctx, "TestFacility-Group9")
	assert.True(t, errors.IsNotFound(err))
}
