package models

import (
	"sort"
	"time"
)

// Repo describes one starred repository as fetched from GitHub. It is
// read-only input to classification; nothing downstream mutates it.
type Repo struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description *string   `json:"description"`
	URL         string    `json:"url"`
	HomepageURL *string   `json:"homepage_url"`
	Stars       int       `json:"stars"`
	Language    *string   `json:"language"`
	Topics      []string  `json:"topics"`
	PushedAt    time.Time `json:"pushed_at"`
}

// ListState is a snapshot of one GitHub star list. It is fetched once per
// run and never re-read: the reconciler computes the full operation set from
// this snapshot, so it is stale the moment the first mutation is applied.
type ListState struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Members holds the full names of repos currently in the list.
	Members map[string]bool `json:"members"`

	// MemberIDs maps full names to GraphQL node IDs. The list mutation API
	// operates on node IDs, not names.
	MemberIDs map[string]string `json:"member_ids"`
}

// HasMember reports whether the repo is in the list snapshot.
func (l *ListState) HasMember(fullName string) bool {
	return l.Members[fullName]
}

// Category is one target classification bucket. In existing-lists mode the
// taxonomy is derived from the current lists; in auto mode the model
// proposes category names and no taxonomy is supplied.
type Category struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

// TaxonomyFromLists derives the category taxonomy for existing-lists mode,
// seeding each category with up to three current members as examples.
func TaxonomyFromLists(lists []ListState) []Category {
	cats := make([]Category, 0, len(lists))
	for _, l := range lists {
		c := Category{Name: l.Name, Description: l.Description}
		members := make([]string, 0, len(l.Members))
		for name := range l.Members {
			members = append(members, name)
		}
		sort.Strings(members)
		if len(members) > 3 {
			members = members[:3]
		}
		c.Examples = members
		cats = append(cats, c)
	}
	return cats
}
