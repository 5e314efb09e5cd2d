package domain

// User identifies an authenticated account as exposed by the identity
// provider. The email is the collaborator-matching key.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
