package protocol

// Root is a file system location the server operates within
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult defines the response for listing roots
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}
