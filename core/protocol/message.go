// Package protocol defines the data types shared by every kernel subsystem:
// conversation turns, parsed capability calls, and capability results.
package protocol

import (
	"fmt"
	"strings"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleTool   Role = "tool"
	RoleSystem Role = "system"
)

// DigestKind distinguishes the two summary tiers produced by compression.
type DigestKind string

const (
	DigestTopic DigestKind = "topic"
	DigestBulk  DigestKind = "bulk"
)

// Digest marks a turn as the summary of the contiguous ordinal range
// [From, To]. A digest turn's Ordinal always equals From.
type Digest struct {
	Kind DigestKind `json:"kind"`
	From int        `json:"from"`
	To   int        `json:"to"`
}

// Key returns the range key under which the digest is persisted.
func (d Digest) Key() string {
	return fmt.Sprintf("%06d-%06d", d.From, d.To)
}

// Attachment is a non-text part of a turn, referenced by location.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	URI      string `json:"uri"`
}

// Turn is one appended unit of conversation history.
//
// Ordinal is assigned by the history on append and is strictly increasing
// within a session. CallID links a tool turn back to the capability call that
// produced it.
type Turn struct {
	Ordinal     int          `json:"ordinal"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CallID      string       `json:"call_id,omitempty"`
	Digest      *Digest      `json:"digest,omitempty"`
}

// NewTurn creates an unnumbered turn with the given role and content.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content}
}

// IsDigest reports whether the turn summarizes a range of earlier turns.
func (t Turn) IsDigest() bool {
	return t.Digest != nil
}

// Last returns the highest ordinal covered by the turn.
func (t Turn) Last() int {
	if t.Digest != nil {
		return t.Digest.To
	}
	return t.Ordinal
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Turn) Clone() Turn {
	c := t
	if t.Attachments != nil {
		c.Attachments = append([]Attachment(nil), t.Attachments...)
	}
	if t.Digest != nil {
		d := *t.Digest
		c.Digest = &d
	}
	return c
}

// Text renders the turn as a single prompt line, prefixing the role.
func (t Turn) Text() string {
	var b strings.Builder
	b.WriteString(string(t.Role))
	if t.Digest != nil {
		fmt.Fprintf(&b, " (summary of %d-%d)", t.Digest.From, t.Digest.To)
	}
	b.WriteString(": ")
	b.WriteString(t.Content)
	for _, a := range t.Attachments {
		fmt.Fprintf(&b, "\n[attachment %s: %s]", a.Name, a.URI)
	}
	return b.String()
}

// UserMessage is the input to one monologue.
type UserMessage struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// System marks framework-originated input (e.g. a scheduler) rather than
	// a human message.
	System bool `json:"system,omitempty"`
}

// Turn converts the message into an unnumbered turn.
func (m UserMessage) Turn() Turn {
	role := RoleUser
	if m.System {
		role = RoleSystem
	}
	return Turn{
		Role:        role,
		Content:     m.Text,
		Attachments: append([]Attachment(nil), m.Attachments...),
	}
}
