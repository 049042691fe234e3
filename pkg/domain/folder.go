package domain

// Folder is the adaptor for TypeFolder entities.
type Folder struct{ *Entity }

func NewFolder() Folder                        { return Folder{New(TypeFolder)} }
func LoadFolder(properties map[string]any) Folder { return Folder{Load(TypeFolder, properties)} }

func (f Folder) Name() string     { return stringProp(f.Entity, "name") }
func (f Folder) SetName(v string) { f.Set("name", v) }

func (f Folder) ParentFolder() string     { return stringProp(f.Entity, "parentFolder") }
func (f Folder) SetParentFolder(v string) { f.Set("parentFolder", v) }

func (f Folder) Enabled() bool     { return boolProp(f.Entity, "enabled") }
func (f Folder) SetEnabled(v bool) { f.Set("enabled", v) }
