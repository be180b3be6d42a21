package importer

import (
	"context"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/store"
)

// ensureTerms creates the exported terms in the target. Terms arrive
// ordered by depth, so a parent is always resolved before its children.
func (im *Importer) ensureTerms(ctx context.Context, terms []domain.Term) {
	for _, t := range terms {
		parent := im.terms[t.ParentID]
		id, err := im.target.EnsureTerm(ctx, t.Taxonomy, t.Slug, t.Name, parent)
		if err != nil {
			im.stats.Issue("", t.ID, errors.Mark(errors.Wrapf(err, "term %s/%s", t.Taxonomy, t.Slug), errors.ErrWrite))
			continue
		}
		im.terms[t.ID] = id
	}
}

func (im *Importer) attachTerms(ctx context.Context, courseID int64, c *domain.Course) {
	for taxonomy, terms := range map[string][]domain.Term{
		store.TaxonomyCategory: c.CategoryTerms,
		store.TaxonomyTag:      c.TagTerms,
	} {
		if len(terms) == 0 {
			continue
		}
		ids := make([]int64, 0, len(terms))
		for _, t := range terms {
			if id, ok := im.terms[t.ID]; ok {
				ids = append(ids, id)
			}
		}
		if err := im.target.SetTerms(ctx, courseID, taxonomy, ids); err != nil {
			im.stats.Issue(domain.KindCourse, c.OldID, errors.Mark(errors.Wrapf(err, "attach %s terms", taxonomy), errors.ErrWrite))
		}
	}
}
