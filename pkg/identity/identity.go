// Package identity resolves local folder names to the repository accounts
// and groups that own the data in them.
package identity

// Kind selects which directory namespace a folder name resolves in.
type Kind string

const (
	// KindUser resolves against user accounts, by username or email
	// depending on the configured folder schema.
	KindUser Kind = "user"

	// KindGroup resolves against access groups, with the configured group
	// name prefix applied.
	KindGroup Kind = "group"
)

// PlaceholderName marks folders whose owner has no repository account. It is
// stored verbatim in experiment titles so unmatched data is easy to find and
// reassign later.
const PlaceholderName = "USER NOT FOUND IN MYTARDIS"

// Owner is a resolved repository identity.
type Owner struct {
	ID   int
	Kind Kind

	// Name is the display name: a user's full name, or a group's
	// unprefixed name.
	Name     string
	Username string
	Email    string

	// Groups lists the names of the groups a user belongs to.
	Groups []string

	// NotInRepository marks the placeholder owner substituted for folders
	// with no matching account when unmatched folders are still uploaded.
	NotInRepository bool
}

// Placeholder returns the sentinel owner for a folder with no matching
// account.
func Placeholder(folderName string) Owner {
	return Owner{
		Kind:            KindUser,
		Name:            PlaceholderName,
		Username:        folderName,
		NotInRepository: true,
	}
}
