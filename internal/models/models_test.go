package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(Session{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "CustomerID", "index")
	assertGormTag(t, typ, "Status", "default:bot")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "Metadata", "serializer:json")
	assertGormTag(t, typ, "UpdatedAt", "autoUpdateTime:false")
	assertGormTag(t, typ, "Messages", "foreignKey:SessionID")
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "SessionID", "idx_session_seq")
	assertGormTag(t, typ, "Sequence", "idx_session_seq")
	assertGormTag(t, typ, "Content", "type:text")
	assertGormTag(t, typ, "Sender", "size:16")
}

func TestAgent_TransientFieldsNotPersisted(t *testing.T) {
	typ := reflect.TypeOf(Agent{})

	if tag := gormTag(t, typ, "ConnID"); tag != "-" {
		t.Errorf("Agent.ConnID gorm tag = %q, want %q", tag, "-")
	}
	if tag := gormTag(t, typ, "Sessions"); tag != "-" {
		t.Errorf("Agent.Sessions gorm tag = %q, want %q", tag, "-")
	}
}

func TestPriority_Rank(t *testing.T) {
	if !(PriorityHigh.Rank() < PriorityNormal.Rank() && PriorityNormal.Rank() < PriorityLow.Rank()) {
		t.Errorf("ranks high=%d normal=%d low=%d not strictly ordered",
			PriorityHigh.Rank(), PriorityNormal.Rank(), PriorityLow.Rank())
	}
	if Priority("bogus").Rank() != PriorityNormal.Rank() {
		t.Error("unknown priority should rank as normal")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
		ok   bool
	}{
		{"high", PriorityHigh, true},
		{"normal", PriorityNormal, true},
		{"low", PriorityLow, true},
		{"", PriorityNormal, true},
		{"urgent", PriorityNormal, false},
	}
	for _, tt := range tests {
		got, ok := ParsePriority(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePriority(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSession_CloneIsIndependent(t *testing.T) {
	now := time.Now()
	orig := &Session{
		ID:       "s1",
		Metadata: Metadata{"name": "Ada"},
		QueuedAt: &now,
		Messages: []Message{{ID: "m1", Content: "hi", Metadata: Metadata{"k": "v"}}},
	}

	c := orig.Clone()
	c.Metadata["name"] = "Grace"
	c.Messages[0].Content = "changed"
	c.Messages[0].Metadata["k"] = "changed"
	*c.QueuedAt = now.Add(time.Hour)
	c.Messages = append(c.Messages, Message{ID: "m2"})

	if orig.Metadata["name"] != "Ada" {
		t.Errorf("metadata leaked: %v", orig.Metadata["name"])
	}
	if orig.Messages[0].Content != "hi" || orig.Messages[0].Metadata["k"] != "v" {
		t.Errorf("message leaked: %+v", orig.Messages[0])
	}
	if !orig.QueuedAt.Equal(now) {
		t.Error("QueuedAt leaked")
	}
	if len(orig.Messages) != 1 {
		t.Errorf("len(orig.Messages) = %d, want 1", len(orig.Messages))
	}
}

func TestSession_SummaryDropsMessages(t *testing.T) {
	s := &Session{ID: "s1", Messages: []Message{{ID: "m1"}}}
	sum := s.Summary()
	if len(sum.Messages) != 0 {
		t.Errorf("len(Summary().Messages) = %d, want 0", len(sum.Messages))
	}
	if sum.Messages == nil {
		t.Error("Summary().Messages should be an empty slice, not nil")
	}
}

func TestSession_CustomerName(t *testing.T) {
	s := &Session{CustomerID: "ada@example.com"}
	if got := s.CustomerName(); got != "ada@example.com" {
		t.Errorf("CustomerName() = %q, want customer id fallback", got)
	}
	s.Metadata = Metadata{"name": "Ada"}
	if got := s.CustomerName(); got != "Ada" {
		t.Errorf("CustomerName() = %q, want %q", got, "Ada")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []SessionStatus{StatusBot, StatusWaiting, StatusAgent, StatusClosed} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if SessionStatus("open").Valid() {
		t.Error("\"open\" should not be valid")
	}
	if !SenderSystem.Valid() || Sender("user").Valid() {
		t.Error("sender validity mismatch")
	}
	if !AgentBusy.Valid() || AgentStatus("away").Valid() {
		t.Error("agent status validity mismatch")
	}
}
