package domain

import "testing"

func TestChangedPropertiesTracksSetAndUnset(t *testing.T) {
	m := NewMail()
	m.SetSubject("a")
	m.SetMessageId("m1")

	changed := m.ChangedProperties()
	if len(changed) != 2 {
		t.Fatalf("changed = %v, want 2 entries", changed)
	}

	m.ResetChangeTracking()
	if len(m.ChangedProperties()) != 0 {
		t.Fatal("ResetChangeTracking left changed properties")
	}

	m.SetSubject("b")
	if got := m.ChangedProperties(); len(got) != 1 || got[0] != "subject" {
		t.Fatalf("changed after single Set = %v", got)
	}

	m.Unset("messageId")
	if _, ok := m.Get("messageId"); ok {
		t.Fatal("Unset left the property readable")
	}
}

func TestLoadDoesNotMarkPropertiesChanged(t *testing.T) {
	m := LoadMail(map[string]any{"subject": "a", "messageId": "m1"})
	if len(m.ChangedProperties()) != 0 {
		t.Fatal("Load marked properties as changed")
	}
	if m.Subject() != "a" || m.MessageId() != "m1" {
		t.Fatal("Load did not round-trip properties")
	}
}

func TestAvailablePropertiesReflectsCurrentState(t *testing.T) {
	f := NewFolder()
	f.SetName("Inbox")
	f.SetParentFolder("")

	props := f.AvailableProperties()
	if len(props) != 2 {
		t.Fatalf("available properties = %v, want 2", props)
	}
}
