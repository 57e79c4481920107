// Package domain contains the presence layer's value types, no I/O.
package domain

import (
	"fmt"
	"strings"
)

// GroupKind selects the routing semantics of a group.
type GroupKind string

const (
	KindPrinter   GroupKind = "p_octo"
	KindWeb       GroupKind = "p_web"
	KindJanusWeb  GroupKind = "janus_web"
	KindTunnel    GroupKind = "octoprinttunnel"
	groupSep                = "."
	maxGroupLen             = 100
	maxChannelLen           = 100
)

// PrinterID identifies the entity a group belongs to.
type PrinterID string

// GroupName is the parsed form of a "{kind}.{entityId}" wire key.
type GroupName struct {
	Kind     GroupKind
	EntityID PrinterID
}

func PrinterGroup(id PrinterID) GroupName  { return GroupName{Kind: KindPrinter, EntityID: id} }
func WebGroup(id PrinterID) GroupName      { return GroupName{Kind: KindWeb, EntityID: id} }
func JanusWebGroup(id PrinterID) GroupName { return GroupName{Kind: KindJanusWeb, EntityID: id} }
func TunnelGroup(id PrinterID) GroupName   { return GroupName{Kind: KindTunnel, EntityID: id} }

// ParseGroupName splits name on its first separator. Kinds outside the known
// set are accepted; only the shape is checked.
func ParseGroupName(name string) (GroupName, error) {
	kind, id, ok := strings.Cut(name, groupSep)
	if !ok || kind == "" || id == "" {
		return GroupName{}, fmt.Errorf("%w: %q", ErrInvalidGroupName, name)
	}
	if len(name) > maxGroupLen {
		return GroupName{}, fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidGroupName, name, maxGroupLen)
	}
	return GroupName{Kind: GroupKind(kind), EntityID: PrinterID(id)}, nil
}

// ValidateGroupKey checks a raw group key before it reaches a store: ASCII
// letters, digits, hyphens, underscores and periods, at most 100 bytes.
func ValidateGroupKey(name string) error {
	if name == "" || len(name) > maxGroupLen {
		return fmt.Errorf("%w: %q", ErrInvalidGroupName, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidGroupName, name, r)
		}
	}
	return nil
}

func (g GroupName) String() string {
	return string(g.Kind) + groupSep + string(g.EntityID)
}

// Known reports whether the kind is one the router derives presence or
// relays for.
func (k GroupKind) Known() bool {
	switch k {
	case KindPrinter, KindWeb, KindJanusWeb, KindTunnel:
		return true
	}
	return false
}
