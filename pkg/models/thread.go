package models

// Thread is the chat UI view of a session.
type Thread struct {
	ID             string         `json:"id"`
	CreatedAt      string         `json:"createdAt"`
	Name           string         `json:"name"`
	UserID         string         `json:"userId"`
	UserIdentifier string         `json:"userIdentifier"`
	Metadata       map[string]any `json:"metadata"`
	Steps          []Step         `json:"steps"`
	Elements       []Element      `json:"elements"`
	Tags           []string       `json:"tags"`
}

// ThreadFilter narrows a thread listing.
type ThreadFilter struct {
	// Search is a case-insensitive substring matched against the thread id.
	Search string `json:"search,omitempty"`
	// UserID restricts results to one owner.
	UserID string `json:"userId,omitempty"`
}

// Pagination requests one page of a cursor listing.
type Pagination struct {
	First  int    `json:"first"`
	Cursor string `json:"cursor,omitempty"`
}

// PageInfo describes the returned page.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	StartCursor *string `json:"startCursor"`
	EndCursor   *string `json:"endCursor"`
}

// PaginatedThreads is one page of threads.
type PaginatedThreads struct {
	PageInfo PageInfo `json:"pageInfo"`
	Data     []Thread `json:"data"`
}

// User is an identity as presented by the chat front-end.
type User struct {
	Identifier string         `json:"identifier"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PersistedUser is a user with a stable id and creation time.
type PersistedUser struct {
	ID         string         `json:"id"`
	Identifier string         `json:"identifier"`
	CreatedAt  string         `json:"createdAt"`
	Metadata   map[string]any `json:"metadata"`
}
