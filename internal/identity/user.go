package identity

// User is the normalized identity asserted by the provider. The same shape is
// returned by the login and verify endpoints.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}
