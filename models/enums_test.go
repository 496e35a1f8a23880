package models

import "testing"

func TestTransactionStatusTransitions(t *testing.T) {
	cases := []struct {
		from TransactionStatus
		to   TransactionStatus
		want bool
	}{
		{TransactionStatusCreated, TransactionStatusCompleted, true},
		{TransactionStatusCreated, TransactionStatusVoided, true},
		{TransactionStatusCompleted, TransactionStatusVoided, true},
		{TransactionStatusCompleted, TransactionStatusCreated, false},
		{TransactionStatusVoided, TransactionStatusCreated, false},
		{TransactionStatusVoided, TransactionStatusCompleted, false},
	}
	for _, c := range cases {
		if got := CanTransitionTransactionStatus(c.from, c.to); got != c.want {
			t.Errorf("CanTransitionTransactionStatus(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestRelationshipVocabulary(t *testing.T) {
	valid := []RelationshipType{
		RelationshipTypeHasStatus, RelationshipTypeParentOf, RelationshipTypeMemberOf,
		RelationshipTypeAssignedTo, RelationshipTypeLocatedAt,
	}
	for _, rt := range valid {
		if !rt.Valid() {
			t.Errorf("expected %s to be in the governed vocabulary", rt)
		}
	}
	invalid := []RelationshipType{"", "has_status", "FRIENDS_WITH", "STATUS"}
	for _, rt := range invalid {
		if rt.Valid() {
			t.Errorf("expected %q to be rejected", rt)
		}
	}
}

func TestFieldTypeValid(t *testing.T) {
	for _, ft := range []FieldType{FieldTypeText, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate, FieldTypeJson} {
		if !ft.Valid() {
			t.Errorf("expected field type %s to be valid", ft)
		}
	}
	if FieldType("decimal").Valid() {
		t.Error("expected unknown field type to be rejected")
	}
}

func TestMemberRoleCanWrite(t *testing.T) {
	if !MemberRoleOwner.CanWrite() || !MemberRoleAdmin.CanWrite() || !MemberRoleMember.CanWrite() {
		t.Error("expected all membership roles to allow writes in their organization")
	}
	if MemberRole("viewer").CanWrite() {
		t.Error("expected unknown role to be denied writes")
	}
}

func TestEntityLifecycleWorkflow(t *testing.T) {
	w := entityLifecycleWorkflow
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{"ACTIVE", "INACTIVE", true},
		{"ACTIVE", "ARCHIVED", true},
		{"INACTIVE", "ACTIVE", true},
		{"ARCHIVED", "ACTIVE", false},
		{"ARCHIVED", "INACTIVE", false},
		{"ACTIVE", "ACTIVE", true},
		{"UNKNOWN", "ACTIVE", false},
	}
	for _, c := range cases {
		if got := w.CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
