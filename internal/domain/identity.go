package domain

// IdentityKind discriminates how a player was identified when they connected.
type IdentityKind string

const (
	// IdentityAuthenticated means the id was issued by the auth service.
	IdentityAuthenticated IdentityKind = "authenticated"
	// IdentityGuest means the id is a client-generated guest token.
	IdentityGuest IdentityKind = "guest"
)

// Identity is the tagged identity variant carried by every player. Exactly
// one kind applies; an empty id never matches anything during join
// resolution.
type Identity struct {
	Kind IdentityKind `json:"kind"`
	ID   string       `json:"id"`
}

// AuthenticatedIdentity builds an identity backed by a verified user id.
func AuthenticatedIdentity(userID string) Identity {
	return Identity{Kind: IdentityAuthenticated, ID: userID}
}

// GuestIdentity builds an identity backed by a client guest token.
func GuestIdentity(guestID string) Identity {
	return Identity{Kind: IdentityGuest, ID: guestID}
}

// IsGuest reports whether the identity has no durable user behind it.
func (i Identity) IsGuest() bool {
	return i.Kind != IdentityAuthenticated
}

// Matches reports whether two identities refer to the same principal.
func (i Identity) Matches(other Identity) bool {
	return i.ID != "" && i.Kind == other.Kind && i.ID == other.ID
}
