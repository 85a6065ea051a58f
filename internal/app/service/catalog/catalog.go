// Package catalog exposes the membership plan reference data declared in
// configuration. Plans are immutable once referenced by a membership; plan
// changes get a new id instead of mutating in place.
package catalog

import (
	"fmt"

	"github.com/lendlib/membership/pkg/apperr"
	cfgpkg "github.com/lendlib/membership/pkg/config"
	"github.com/lendlib/membership/pkg/types"
)

type Catalog struct {
	byID   map[string]*types.MembershipType
	byName map[types.MembershipTypeName]*types.MembershipType
}

// New validates the configured plan table: names must be known, fixed-day
// plans need a positive duration and successor references must resolve.
func New(cfg *cfgpkg.Config) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[string]*types.MembershipType, len(cfg.MembershipTypes)),
		byName: make(map[types.MembershipTypeName]*types.MembershipType, len(cfg.MembershipTypes)),
	}
	for _, t := range cfg.MembershipTypes {
		if t.ID == "" {
			return nil, fmt.Errorf("membership type without id")
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate membership type id %q", t.ID)
		}
		switch t.Name {
		case types.MembershipTypeRegular, types.MembershipTypeTemporary, types.MembershipTypeStroom:
		default:
			return nil, fmt.Errorf("membership type %q has unknown name %q", t.ID, t.Name)
		}
		if t.Duration == types.DurationFixedDays && t.DurationDays <= 0 {
			return nil, fmt.Errorf("membership type %q needs a positive duration_days", t.ID)
		}
		c.byID[t.ID] = t
		c.byName[t.Name] = t
	}
	for _, t := range c.byID {
		if t.NextID != "" {
			if _, ok := c.byID[t.NextID]; !ok {
				return nil, fmt.Errorf("membership type %q references unknown successor %q", t.ID, t.NextID)
			}
		}
	}
	return c, nil
}

func (c *Catalog) Find(id string) (*types.MembershipType, error) {
	if t, ok := c.byID[id]; ok {
		return t, nil
	}
	return nil, apperr.Newf(apperr.CodeUnexpectedMembershipType, "unknown membership type %q", id)
}

func (c *Catalog) Regular() *types.MembershipType   { return c.byName[types.MembershipTypeRegular] }
func (c *Catalog) Temporary() *types.MembershipType { return c.byName[types.MembershipTypeTemporary] }
func (c *Catalog) Stroom() *types.MembershipType    { return c.byName[types.MembershipTypeStroom] }

// NextForRenewal resolves the plan a renewal should be sold as: the current
// plan's successor when configured, otherwise the current plan unchanged.
// The stroom plan always renews as itself.
func (c *Catalog) NextForRenewal(current *types.MembershipType) (*types.MembershipType, error) {
	if current == nil {
		return nil, apperr.New(apperr.CodeUnexpectedMembershipType, "renewal without a current membership type")
	}
	if current.Name == types.MembershipTypeStroom || current.NextID == "" {
		return current, nil
	}
	return c.Find(current.NextID)
}
