// File: model/records.go
package model

import "time"

// AccessType is the access-control policy attached to a dataset.
type AccessType string

const (
	AccessOpen         AccessType = "OPEN"         // Anyone can access, no grant required
	AccessPaid         AccessType = "PAID"         // Access granted on payment of the dataset price
	AccessPermissioned AccessType = "PERMISSIONED" // Access granted only by the dataset owner
)

// Valid reports whether t is one of the three defined access types.
func (t AccessType) Valid() bool {
	switch t {
	case AccessOpen, AccessPaid, AccessPermissioned:
		return true
	}
	return false
}

// Researcher stores the profile of a registered research participant.
type Researcher struct {
	ObjectType         string    `json:"objectType"`         // Set to the composite key object type (Researcher)
	ID                 string    `json:"id"`                 // Authenticated identity string supplied by the peer
	Name               string    `json:"name"`               // Display name
	Institution        string    `json:"institution"`        // Affiliated institution
	Credentials        string    `json:"credentials"`        // Free-text credentials
	DatasetsRegistered int       `json:"datasetsRegistered"` // Count of datasets this researcher owns
	RegisteredAt       time.Time `json:"registeredAt"`       // Immutable once set
}

// Dataset is the metadata record for one market-research dataset. The payload
// itself lives off-chain; only the content hash is tracked here.
type Dataset struct {
	ObjectType     string     `json:"objectType"` // "Dataset"
	ID             string     `json:"id"`         // Caller-supplied unique identifier
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	Region         string     `json:"region"`
	CollectionDate time.Time  `json:"collectionDate"`
	Methodology    string     `json:"methodology"`
	ContentHash    string     `json:"contentHash"` // Hex-encoded SHA-256 digest of the payload
	OwnerID        string     `json:"ownerId"`     // Registered researcher that owns this dataset
	AccessType     AccessType `json:"accessType"`
	Price          int64      `json:"price"` // Meaningful only when AccessType is PAID
	CitationCount  int        `json:"citationCount"`
	Verified       bool       `json:"verified"` // Set by the administrator, never reversed
	RegisteredAt   time.Time  `json:"registeredAt"`
}

// AccessGrant records one identity's permission to access one dataset.
type AccessGrant struct {
	ObjectType string    `json:"objectType"` // "AccessGrant"
	DatasetID  string    `json:"datasetId"`
	GranteeID  string    `json:"granteeId"`
	Access     bool      `json:"access"`
	GrantedBy  string    `json:"grantedBy"`
	GrantedAt  time.Time `json:"grantedAt"`
}

// Citation is an attribution record linking a researcher's use of a dataset.
// At most one per (dataset, researcher) pair; a re-citation overwrites it.
type Citation struct {
	ObjectType   string    `json:"objectType"` // "Citation"
	DatasetID    string    `json:"datasetId"`
	ResearcherID string    `json:"researcherId"`
	Context      string    `json:"context"`
	CitedAt      time.Time `json:"citedAt"`
}

// PaginatedDatasetResponse is the structure returned by paginated dataset queries.
type PaginatedDatasetResponse struct {
	Datasets     []*Dataset `json:"datasets"`
	NextBookmark string     `json:"nextBookmark"`
	FetchedCount int32      `json:"fetchedCount"`
}
