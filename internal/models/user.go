package models

// Identity is an authenticated user as seen by the realtime core.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LiveUser is a point-in-time view of a connected user and its connection handles.
type LiveUser struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ConnectionIDs []string `json:"connection_ids,omitempty"`
}
