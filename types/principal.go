package types

// Principal is the stable on-ledger identity of an actor: an agent, an
// allowance owner, an invoice party, or an engine-owned account such as the
// escrow vault. The engine treats it as an opaque address; the underlying
// sequencer guarantees it cannot be forged.
type Principal string

// NoPrincipal is the zero identity. Operations reject it wherever a real
// counterparty is required.
const NoPrincipal Principal = ""

// IsZero reports whether the principal is the zero identity.
func (p Principal) IsZero() bool { return p == NoPrincipal }

// String returns the principal's address.
func (p Principal) String() string { return string(p) }
