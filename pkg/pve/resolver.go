package pve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAmbiguous        = errors.New("ambiguous name")
	ErrLocationMismatch = errors.New("not on the requested node")
)

// ResourceRef names a guest either by VMID or by name.
type ResourceRef struct {
	id   uint64
	name string
}

func RefID(id uint64) ResourceRef     { return ResourceRef{id: id} }
func RefName(name string) ResourceRef { return ResourceRef{name: name} }

// ParseRef reads a positive integer as a VMID, anything else as a name.
func ParseRef(s string) ResourceRef {
	if id, err := strconv.ParseUint(s, 10, 64); err == nil && id > 0 {
		return RefID(id)
	}
	return RefName(s)
}

func (r ResourceRef) ID() (uint64, bool) {
	return r.id, r.id != 0
}

func (r ResourceRef) Name() string {
	return r.name
}

func (r ResourceRef) String() string {
	if r.id != 0 {
		return strconv.FormatUint(r.id, 10)
	}
	return r.name
}

// Lister returns the current guests of one kind across the cluster.
type Lister func(ctx context.Context) ([]Guest, error)

// Resolve turns ref into a VMID and the node it lives on. location is the
// node the caller asked for, or empty. The list is fetched on every call.
func Resolve(ctx context.Context, list Lister, ref ResourceRef, location string, kind Kind) (uint64, string, error) {
	if id, ok := ref.ID(); ok {
		if location != "" {
			return id, location, nil
		}
		guests, err := list(ctx)
		if err != nil {
			return 0, "", err
		}
		for _, g := range guests {
			if uint64(g.VMID) == id {
				return id, g.Node, nil
			}
		}
		return 0, "", fmt.Errorf("%w: %s ID %d, specify the node with --node", ErrNotFound, kind.Label, id)
	}

	guests, err := list(ctx)
	if err != nil {
		return 0, "", err
	}
	var matches []Guest
	for _, g := range guests {
		if g.Name == ref.Name() {
			matches = append(matches, g)
		}
	}
	if len(matches) == 0 {
		return 0, "", fmt.Errorf("%w: %s '%s'", ErrNotFound, kind.Label, ref.Name())
	}

	if location != "" {
		nodes := make([]string, 0, len(matches))
		for _, g := range matches {
			if g.Node == location {
				return uint64(g.VMID), g.Node, nil
			}
			nodes = append(nodes, g.Node)
		}
		return 0, "", fmt.Errorf("%w: '%s' is on node %s, not %s",
			ErrLocationMismatch, ref.Name(), strings.Join(nodes, ", "), location)
	}

	if len(matches) > 1 {
		candidates := make([]string, len(matches))
		for i, g := range matches {
			candidates[i] = fmt.Sprintf("%d@%s", g.VMID, g.Node)
		}
		return 0, "", fmt.Errorf("%w: %d %ss named '%s' (%s), specify the node with --node",
			ErrAmbiguous, len(matches), kind.Label, ref.Name(), strings.Join(candidates, ", "))
	}
	return uint64(matches[0].VMID), matches[0].Node, nil
}
