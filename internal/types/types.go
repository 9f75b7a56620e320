package types

// User is the authenticated identity attached to a connection session.
// The json tags match the wire protocol's field names.
type User struct {
	Id       string `json:"userId"`
	Nickname string `json:"nickname"`
}
