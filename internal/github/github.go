// Package github talks to the GitHub GraphQL API: it reads the starred-repo
// and star-list snapshots and applies list mutations. The UserList surface
// is lightly documented; queries and mutations here match observed API
// behavior.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"startidy/internal/models"
)

const defaultEndpoint = "https://api.github.com/graphql"

// Client is a thin wrapper around the GitHub GraphQL API.
//
// The list mutation API (updateUserListsForItem) replaces an item's entire
// list membership in one call, so the client tracks each item's current
// memberships from the FetchLists snapshot and folds single add/remove
// operations into full-set updates. AddMember and RemoveMember therefore
// require FetchLists to have been called on the same client first. The run
// is single-writer, so the tracked memberships stay accurate.
type Client struct {
	token      string
	endpoint   string
	httpClient *http.Client

	// itemLists maps repo node ID to the node IDs of lists containing it.
	itemLists map[string][]string
}

func NewClient(token string) *Client {
	return &Client{
		token:      token,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		itemLists:  make(map[string][]string),
	}
}

const starredQuery = `
query($after: String) {
  viewer {
    starredRepositories(first: 100, after: $after) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes {
        id
        owner { login }
        name
        description
        url
        homepageUrl
        stargazerCount
        pushedAt
        primaryLanguage { name }
        repositoryTopics(first: 20) {
          nodes { topic { name } }
        }
      }
    }
  }
}
`

const listsQuery = `
query($after: String) {
  viewer {
    lists(first: 50, after: $after) {
      pageInfo { hasNextPage endCursor }
      nodes {
        id
        name
        description
        items(first: 100) {
          pageInfo { hasNextPage endCursor }
          nodes {
            ... on Repository { id nameWithOwner }
          }
        }
      }
    }
  }
}
`

// listItemsQuery pages through the remaining items of a single list when the
// nested connection in listsQuery overflows one page.
const listItemsQuery = `
query($listId: ID!, $after: String) {
  node(id: $listId) {
    ... on UserList {
      items(first: 100, after: $after) {
        pageInfo { hasNextPage endCursor }
        nodes {
          ... on Repository { id nameWithOwner }
        }
      }
    }
  }
}
`

const createListMutation = `
mutation($name: String!, $description: String) {
  createUserList(input: {name: $name, description: $description}) {
    list { id }
  }
}
`

const updateListMutation = `
mutation($listId: ID!, $description: String) {
  updateUserList(input: {listId: $listId, description: $description}) {
    list { id }
  }
}
`

const updateItemListsMutation = `
mutation($itemId: ID!, $listIds: [ID!]!) {
  updateUserListsForItem(input: {itemId: $itemId, listIds: $listIds}) {
    lists { id }
  }
}
`

// FetchStarred returns the viewer's starred repositories via forward Relay
// pagination, in starred order.
func (c *Client) FetchStarred(ctx context.Context) ([]models.Repo, error) {
	var repos []models.Repo
	var cursor *string

	for {
		vars := map[string]any{}
		if cursor != nil {
			vars["after"] = *cursor
		}
		body, err := c.doGraphQL(ctx, starredQuery, vars)
		if err != nil {
			return nil, &models.FetchError{Resource: "starred repositories", Err: err}
		}

		var data starredData
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, &models.FetchError{Resource: "starred repositories", Err: fmt.Errorf("parsing response: %w", err)}
		}

		conn := data.Viewer.StarredRepositories
		for _, node := range conn.Nodes {
			repos = append(repos, nodeToRepo(node))
		}

		if !conn.PageInfo.HasNextPage {
			break
		}
		cursor = &conn.PageInfo.EndCursor
	}

	return repos, nil
}

// FetchLists returns a snapshot of the viewer's star lists, including full
// membership, and primes the client's item-membership tracking.
func (c *Client) FetchLists(ctx context.Context) ([]models.ListState, error) {
	var lists []models.ListState
	var cursor *string

	for {
		vars := map[string]any{}
		if cursor != nil {
			vars["after"] = *cursor
		}
		body, err := c.doGraphQL(ctx, listsQuery, vars)
		if err != nil {
			return nil, &models.FetchError{Resource: "star lists", Err: err}
		}

		var data listsData
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, &models.FetchError{Resource: "star lists", Err: fmt.Errorf("parsing response: %w", err)}
		}

		for _, node := range data.Viewer.Lists.Nodes {
			state := models.ListState{
				ID:        node.ID,
				Name:      node.Name,
				Members:   make(map[string]bool),
				MemberIDs: make(map[string]string),
			}
			if node.Description != nil {
				state.Description = *node.Description
			}

			items := node.Items.Nodes
			info := node.Items.PageInfo
			for info.HasNextPage {
				more, nextInfo, err := c.fetchListItems(ctx, node.ID, info.EndCursor)
				if err != nil {
					return nil, &models.FetchError{Resource: "star list items", Err: err}
				}
				items = append(items, more...)
				info = nextInfo
			}

			for _, item := range items {
				if item.NameWithOwner == "" {
					continue // non-repository list item
				}
				state.Members[item.NameWithOwner] = true
				state.MemberIDs[item.NameWithOwner] = item.ID
				c.itemLists[item.ID] = append(c.itemLists[item.ID], node.ID)
			}

			lists = append(lists, state)
		}

		if !data.Viewer.Lists.PageInfo.HasNextPage {
			break
		}
		cursor = &data.Viewer.Lists.PageInfo.EndCursor
	}

	return lists, nil
}

func (c *Client) fetchListItems(ctx context.Context, listID, after string) ([]itemNode, pageInfo, error) {
	vars := map[string]any{"listId": listID, "after": after}
	body, err := c.doGraphQL(ctx, listItemsQuery, vars)
	if err != nil {
		return nil, pageInfo{}, err
	}

	var data listItemsData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, pageInfo{}, fmt.Errorf("parsing response: %w", err)
	}
	return data.Node.Items.Nodes, data.Node.Items.PageInfo, nil
}

// CreateList creates a star list and returns its node ID.
func (c *Client) CreateList(ctx context.Context, name, description string) (string, error) {
	vars := map[string]any{"name": name, "description": description}
	body, err := c.doGraphQL(ctx, createListMutation, vars)
	if err != nil {
		return "", err
	}

	var data struct {
		CreateUserList struct {
			List struct {
				ID string `json:"id"`
			} `json:"list"`
		} `json:"createUserList"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if data.CreateUserList.List.ID == "" {
		return "", fmt.Errorf("createUserList returned no list ID")
	}
	return data.CreateUserList.List.ID, nil
}

// SetSummary replaces a list's description.
func (c *Client) SetSummary(ctx context.Context, listID, description string) error {
	vars := map[string]any{"listId": listID, "description": description}
	_, err := c.doGraphQL(ctx, updateListMutation, vars)
	return err
}

// AddMember adds a repository to a list. No-op if the tracked membership
// already contains the list.
func (c *Client) AddMember(ctx context.Context, listID, repoID string) error {
	current := c.itemLists[repoID]
	for _, id := range current {
		if id == listID {
			return nil
		}
	}
	desired := append(append([]string{}, current...), listID)
	if err := c.updateItemLists(ctx, repoID, desired); err != nil {
		return err
	}
	c.itemLists[repoID] = desired
	return nil
}

// RemoveMember removes a repository from a list.
func (c *Client) RemoveMember(ctx context.Context, listID, repoID string) error {
	current := c.itemLists[repoID]
	desired := make([]string, 0, len(current))
	for _, id := range current {
		if id != listID {
			desired = append(desired, id)
		}
	}
	if len(desired) == len(current) {
		return nil
	}
	if err := c.updateItemLists(ctx, repoID, desired); err != nil {
		return err
	}
	c.itemLists[repoID] = desired
	return nil
}

func (c *Client) updateItemLists(ctx context.Context, repoID string, listIDs []string) error {
	vars := map[string]any{"itemId": repoID, "listIds": listIDs}
	_, err := c.doGraphQL(ctx, updateItemListsMutation, vars)
	return err
}

// --- internal ---

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type starredData struct {
	Viewer struct {
		StarredRepositories struct {
			TotalCount int        `json:"totalCount"`
			PageInfo   pageInfo   `json:"pageInfo"`
			Nodes      []repoNode `json:"nodes"`
		} `json:"starredRepositories"`
	} `json:"viewer"`
}

type repoNode struct {
	ID    string `json:"id"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Name            string    `json:"name"`
	Description     *string   `json:"description"`
	URL             string    `json:"url"`
	HomepageURL     *string   `json:"homepageUrl"`
	StargazerCount  int       `json:"stargazerCount"`
	PushedAt        time.Time `json:"pushedAt"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	RepositoryTopics struct {
		Nodes []struct {
			Topic struct {
				Name string `json:"name"`
			} `json:"topic"`
		} `json:"nodes"`
	} `json:"repositoryTopics"`
}

type itemNode struct {
	ID            string `json:"id"`
	NameWithOwner string `json:"nameWithOwner"`
}

type listNode struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Items       struct {
		PageInfo pageInfo   `json:"pageInfo"`
		Nodes    []itemNode `json:"nodes"`
	} `json:"items"`
}

type listsData struct {
	Viewer struct {
		Lists struct {
			PageInfo pageInfo   `json:"pageInfo"`
			Nodes    []listNode `json:"nodes"`
		} `json:"lists"`
	} `json:"viewer"`
}

type listItemsData struct {
	Node struct {
		Items struct {
			PageInfo pageInfo   `json:"pageInfo"`
			Nodes    []itemNode `json:"nodes"`
		} `json:"items"`
	} `json:"node"`
}

func (c *Client) doGraphQL(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("parsing GraphQL response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}

func nodeToRepo(n repoNode) models.Repo {
	r := models.Repo{
		ID:          n.ID,
		Owner:       n.Owner.Login,
		Name:        n.Name,
		FullName:    n.Owner.Login + "/" + n.Name,
		Description: n.Description,
		URL:         n.URL,
		HomepageURL: n.HomepageURL,
		Stars:       n.StargazerCount,
		PushedAt:    n.PushedAt,
	}

	if n.PrimaryLanguage != nil {
		r.Language = &n.PrimaryLanguage.Name
	}

	var topics []string
	for _, t := range n.RepositoryTopics.Nodes {
		topics = append(topics, t.Topic.Name)
	}
	if topics == nil {
		topics = []string{}
	}
	r.Topics = topics

	return r
}
