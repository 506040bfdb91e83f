package catalog

import (
	"fmt"

	"github.com/roach88/versync/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateNodeType     = "E201" // two nodes share a marker
	ErrDuplicateTagGroupType = "E202" // two tag groups on a node share a marker
	ErrDuplicateTagType      = "E203" // two tags in a group share a marker
	ErrDuplicateLayerType    = "E204" // two layers on a node share a marker
)

// ValidationError reports a marker collision.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate returns every marker collision in c. A catalog with
// collisions still answers shape queries, but one of the colliding
// declarations is unreachable.
func (c *Catalog) Validate() []ValidationError {
	var errs []ValidationError

	nodes := make(map[ir.CustomType]string)
	for _, n := range c.nodes {
		path := "node." + n.Name
		if prev, ok := nodes[n.Type]; ok {
			errs = append(errs, ValidationError{
				Field:   path + ".type",
				Message: fmt.Sprintf("type %d already declared by node.%s", n.Type, prev),
				Code:    ErrDuplicateNodeType,
			})
		} else {
			nodes[n.Type] = n.Name
		}

		groups := make(map[ir.CustomType]string)
		for _, g := range n.TagGroups {
			gpath := path + ".taggroup." + g.Name
			if prev, ok := groups[g.Type]; ok {
				errs = append(errs, ValidationError{
					Field:   gpath + ".type",
					Message: fmt.Sprintf("type %d already declared by taggroup.%s", g.Type, prev),
					Code:    ErrDuplicateTagGroupType,
				})
			} else {
				groups[g.Type] = g.Name
			}

			tags := make(map[ir.CustomType]string)
			for _, t := range g.Tags {
				if prev, ok := tags[t.Type]; ok {
					errs = append(errs, ValidationError{
						Field:   gpath + ".tag." + t.Name + ".type",
						Message: fmt.Sprintf("type %d already declared by tag.%s", t.Type, prev),
						Code:    ErrDuplicateTagType,
					})
				} else {
					tags[t.Type] = t.Name
				}
			}
		}

		layers := make(map[ir.CustomType]string)
		for _, l := range n.Layers {
			if prev, ok := layers[l.Type]; ok {
				errs = append(errs, ValidationError{
					Field:   path + ".layer." + l.Name + ".type",
					Message: fmt.Sprintf("type %d already declared by layer.%s", l.Type, prev),
					Code:    ErrDuplicateLayerType,
				})
			} else {
				layers[l.Type] = l.Name
			}
		}
	}
	return errs
}
