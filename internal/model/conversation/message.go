package conversation

import "time"

// PartitionNone is the partition key for questions asked without a vehicle
// selected.
const PartitionNone = ""

// Message records one answered question. Immutable once created; unique by ID.
type Message struct {
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicleId,omitempty"` // empty designates the vehicle-less bucket
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is one slice of a partition as returned by the durable store, ordered
// by CreatedAt descending.
type Page struct {
	Messages   []Message `json:"messages"`
	TotalCount int       `json:"totalCount"`
}

// Cursor tracks pagination progress for one partition.
type Cursor struct {
	LoadedCount int  `json:"loadedCount"`
	TotalCount  int  `json:"totalCount"`
	HasMore     bool `json:"hasMore"`
	IsLoading   bool `json:"isLoading"`
}
