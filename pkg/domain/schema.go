package domain

// Kind is the declared wire type of one property. Every entity type
// carries a fixed schema rather than storing untyped, schema-less blobs:
// the schema is what lets a decoded JSON value be restored to the Go
// type its typed accessor (Mail.Date, Folder.Enabled, ...) expects.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindTime
	KindStringSlice
)

// Schema is the declared property set for one entity type.
var Schema = map[Type]map[string]Kind{
	TypeMail: {
		"messageId":  KindString,
		"subject":    KindString,
		"sender":     KindString,
		"recipients": KindStringSlice,
		"folder":     KindString,
		"date":       KindTime,
		"unread":     KindBool,
	},
	TypeFolder: {
		"name":         KindString,
		"parentFolder": KindString,
		"enabled":      KindBool,
	},
	TypeEvent: {
		"summary":  KindString,
		"start":    KindTime,
		"end":      KindTime,
		"calendar": KindString,
	},
	TypeAccount: {
		"name":        KindString,
		"accountType": KindString,
	},
	TypeIdentity: {
		"address":     KindString,
		"displayName": KindString,
		"account":     KindString,
	},
	TypeResource: {
		"accountId":        KindString,
		"type":             KindString,
		"server":           KindString,
		"port":             KindInt,
		"disconnectedMode": KindBool,
	},
}
