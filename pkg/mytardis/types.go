package mytardis

import (
	"fmt"
	"strconv"
	"strings"
)

// User is a MyTardis user account.
type User struct {
	ID        int     `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Groups    []Group `json:"groups"`
}

// FullName returns the user's display name, falling back to the username when
// the account has no name set.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Group is a MyTardis access group.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Facility is a facility record. Only facilities managed by the API user are
// visible.
type Facility struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ResourceURI string `json:"resource_uri"`
}

// Instrument is an instrument attached to a facility.
type Instrument struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Facility    Facility `json:"facility"`
	ResourceURI string   `json:"resource_uri"`
}

// Experiment groups datasets under a title, attributed to the uploader
// instance and folder that produced them.
type Experiment struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ResourceURI string `json:"resource_uri"`
}

// Dataset is one dataset record within an experiment.
type Dataset struct {
	ID          int      `json:"id"`
	Description string   `json:"description"`
	Experiments []string `json:"experiments"`
	Immutable   bool     `json:"immutable"`
	Instrument  string   `json:"instrument,omitempty"`
	ResourceURI string   `json:"resource_uri"`
}

// DataFile is one file record within a dataset. Size is a string on the wire.
type DataFile struct {
	ID          int       `json:"id"`
	Filename    string    `json:"filename"`
	Directory   string    `json:"directory"`
	Size        string    `json:"size"`
	Md5Sum      string    `json:"md5sum"`
	Replicas    []Replica `json:"replicas"`
	ResourceURI string    `json:"resource_uri"`
}

// Verified reports whether any replica of the file has passed server-side
// verification.
func (f DataFile) Verified() bool {
	for _, replica := range f.Replicas {
		if replica.Verified {
			return true
		}
	}
	return false
}

// SizeBytes parses the wire size. A malformed size is treated as unknown (-1)
// so it never compares equal to a real local size.
func (f DataFile) SizeBytes() int64 {
	size, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil {
		return -1
	}
	return size
}

// Replica is one stored copy of a datafile.
type Replica struct {
	ID       int    `json:"id"`
	URI      string `json:"uri"`
	Verified bool   `json:"verified"`
}

// StorageBox describes where approved staged uploads land.
type StorageBox struct {
	ID         int                  `json:"id"`
	Name       string               `json:"name"`
	Attributes []StorageBoxKeyValue `json:"attributes"`
	Options    []StorageBoxKeyValue `json:"options"`
}

// StorageBoxKeyValue is a single attribute or option of a storage box.
type StorageBoxKeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func lookup(pairs []StorageBoxKeyValue, key string) (string, bool) {
	for _, pair := range pairs {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

// ScpUsername returns the account staged uploads authenticate as.
func (b StorageBox) ScpUsername() (string, error) {
	value, ok := lookup(b.Attributes, "scp_username")
	if !ok {
		return "", fmt.Errorf("storage box %q has no scp_username attribute", b.Name)
	}
	return value, nil
}

// ScpHostname returns the staging host.
func (b StorageBox) ScpHostname() (string, error) {
	value, ok := lookup(b.Attributes, "scp_hostname")
	if !ok {
		return "", fmt.Errorf("storage box %q has no scp_hostname attribute", b.Name)
	}
	return value, nil
}

// ScpPort returns the staging SSH port, defaulting to 22.
func (b StorageBox) ScpPort() string {
	if value, ok := lookup(b.Attributes, "scp_port"); ok {
		return value
	}
	return "22"
}

// Location returns the filesystem root of the storage box on the staging
// host.
func (b StorageBox) Location() (string, error) {
	value, ok := lookup(b.Options, "location")
	if !ok {
		return "", fmt.Errorf("storage box %q has no location option", b.Name)
	}
	return value, nil
}
