package remote

// RevisionToken identifies the remote blob a write is based on. It is
// opaque: compare tokens only with Equal and never parse them.
type RevisionToken struct {
	v string
}

// NewRevisionToken wraps a server-issued token.
func NewRevisionToken(s string) RevisionToken { return RevisionToken{v: s} }

// IsZero reports whether no revision is known (the blob has never been read).
func (r RevisionToken) IsZero() bool { return r.v == "" }

// Equal reports whether two tokens name the same revision.
func (r RevisionToken) Equal(o RevisionToken) bool { return r.v == o.v }

// String returns the raw token for logging and the wire.
func (r RevisionToken) String() string { return r.v }
