package domain

// Account is the adaptor for TypeAccount entities. Accounts and
// identities live in the dedicated "local" environment shared by every
// resource, rather than in a single resource's own environment.
type Account struct{ *Entity }

func NewAccount() Account                        { return Account{New(TypeAccount)} }
func LoadAccount(properties map[string]any) Account { return Account{Load(TypeAccount, properties)} }

func (a Account) Name() string     { return stringProp(a.Entity, "name") }
func (a Account) SetName(v string) { a.Set("name", v) }

func (a Account) AccountType() string     { return stringProp(a.Entity, "accountType") }
func (a Account) SetAccountType(v string) { a.Set("accountType", v) }
