package repository

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

// TestProperty_VersionMonotonic checks that every committed mutation raises
// the version by exactly one and never moves updated_at backwards, whatever
// the interleaving of updates, deletes and restores.
func TestProperty_VersionMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("versions increase by one per mutation", prop.ForAll(
		func(ops []int) bool {
			h := newHarness(t)
			c := h.create(t, h.scope, "Ada")
			version := c.Version
			updatedAt := c.UpdatedAt
			deleted := false

			for _, op := range ops {
				var next *models.Contact
				err := h.do(t, func(ctx context.Context, tx store.Tx) error {
					var err error
					switch {
					case op == 0 && !deleted:
						next, err = h.repo.SoftDelete(ctx, tx, h.scope, c.ID, version)
					case op == 0 && deleted:
						next, err = h.repo.Restore(ctx, tx, h.scope, c.ID, version)
					default:
						if deleted {
							next, err = h.repo.Restore(ctx, tx, h.scope, c.ID, version)
							break
						}
						next, err = h.repo.Update(ctx, tx, h.scope, c.ID, version, store.Patch{"notes": time.Duration(op).String()})
					}
					return err
				})
				if err != nil {
					return false
				}
				if next.Version != version+1 || !next.UpdatedAt.After(updatedAt) {
					return false
				}
				version = next.Version
				updatedAt = next.UpdatedAt
				deleted = next.IsDeleted
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
