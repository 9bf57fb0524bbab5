package github

// Issue is the subset of the GitHub issue resource the gateway reads.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	Labels []Label `json:"labels,omitempty"`
}

// Label is a GitHub issue label.
type Label struct {
	Name string `json:"name"`
}
