package models

// User is the profile returned by the backend "who am I" endpoint.
type User struct {
	Name           string `json:"name"`
	GitHubUsername string `json:"githubUsername"`
	Email          string `json:"email,omitempty"`
}
