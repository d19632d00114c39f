package domain

// Identity is the authenticated user a connection speaks for. It is produced
// once by the credential check at handshake time and is immutable for the
// lifetime of the connection.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
