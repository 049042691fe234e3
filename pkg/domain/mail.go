package domain

import "time"

// Mail is the adaptor for TypeMail entities.
type Mail struct{ *Entity }

// NewMail wraps a fresh Entity as a Mail.
func NewMail() Mail { return Mail{New(TypeMail)} }

// LoadMail wraps a previously stored property set as a Mail.
func LoadMail(properties map[string]any) Mail { return Mail{Load(TypeMail, properties)} }

func (m Mail) MessageId() string     { return stringProp(m.Entity, "messageId") }
func (m Mail) SetMessageId(v string) { m.Set("messageId", v) }

func (m Mail) Subject() string     { return stringProp(m.Entity, "subject") }
func (m Mail) SetSubject(v string) { m.Set("subject", v) }

func (m Mail) Sender() string     { return stringProp(m.Entity, "sender") }
func (m Mail) SetSender(v string) { m.Set("sender", v) }

func (m Mail) Recipients() []string     { return stringSliceProp(m.Entity, "recipients") }
func (m Mail) SetRecipients(v []string) { m.Set("recipients", v) }

func (m Mail) Folder() string     { return stringProp(m.Entity, "folder") }
func (m Mail) SetFolder(v string) { m.Set("folder", v) }

func (m Mail) Date() time.Time {
	v, ok := m.Get("date")
	if !ok {
		return time.Time{}
	}
	t, _ := v.(time.Time)
	return t
}
func (m Mail) SetDate(v time.Time) { m.Set("date", v) }

func (m Mail) Unread() bool     { return boolProp(m.Entity, "unread") }
func (m Mail) SetUnread(v bool) { m.Set("unread", v) }

func stringProp(e *Entity, name string) string {
	v, ok := e.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolProp(e *Entity, name string) bool {
	v, ok := e.Get(name)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func stringSliceProp(e *Entity, name string) []string {
	v, ok := e.Get(name)
	if !ok {
		return nil
	}
	s, _ := v.([]string)
	return s
}
