package domain

// Identity is the adaptor for TypeIdentity entities: a sender identity
// (name + address) belonging to an account.
type Identity struct{ *Entity }

func NewIdentity() Identity                        { return Identity{New(TypeIdentity)} }
func LoadIdentity(properties map[string]any) Identity { return Identity{Load(TypeIdentity, properties)} }

func (i Identity) Address() string     { return stringProp(i.Entity, "address") }
func (i Identity) SetAddress(v string) { i.Set("address", v) }

func (i Identity) DisplayName() string     { return stringProp(i.Entity, "displayName") }
func (i Identity) SetDisplayName(v string) { i.Set("displayName", v) }

func (i Identity) Account() string     { return stringProp(i.Entity, "account") }
func (i Identity) SetAccount(v string) { i.Set("account", v) }
