package domain

// Resource is the adaptor for TypeResource entities: the configuration
// record describing one resource process (account + backend type +
// type-specific connection parameters).
type Resource struct{ *Entity }

func NewResource() Resource                        { return Resource{New(TypeResource)} }
func LoadResource(properties map[string]any) Resource { return Resource{Load(TypeResource, properties)} }

func (r Resource) AccountId() string     { return stringProp(r.Entity, "accountId") }
func (r Resource) SetAccountId(v string) { r.Set("accountId", v) }

func (r Resource) ResourceType() string     { return stringProp(r.Entity, "type") }
func (r Resource) SetResourceType(v string) { r.Set("type", v) }

func (r Resource) Server() string     { return stringProp(r.Entity, "server") }
func (r Resource) SetServer(v string) { r.Set("server", v) }

func (r Resource) Port() int {
	v, ok := r.Get("port")
	if !ok {
		return 0
	}
	p, _ := v.(int)
	return p
}
func (r Resource) SetPort(v int) { r.Set("port", v) }

func (r Resource) DisconnectedMode() bool     { return boolProp(r.Entity, "disconnectedMode") }
func (r Resource) SetDisconnectedMode(v bool) { r.Set("disconnectedMode", v) }
