// Package commerce reconciles a course with the external product catalog and
// derives its access classification. Reconciliation is read-only.
package commerce

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/relation"
	"lms-migrate/internal/store"
)

// Downgrade reasons recorded when a paid course is reclassified as closed.
const (
	ReasonNoProduct           = "no_product"
	ReasonProductNotPublished = "product_not_published"
	ReasonProductHidden       = "product_hidden"
	ReasonNoPrice             = "no_price"
)

// Lookup paths.
const (
	PathForward = "forward"
	PathReverse = "reverse"
)

var skuSentinels = map[string]bool{"": true, "-": true, "n/a": true, "none": true, "null": true, "no sku": true}

// Reverse-lookup ranking; statuses not listed rank as unknown.
var statusRank = map[string]int{"publish": 3, "draft": 2, "private": 1}

var hiddenVisibility = map[string]bool{"hidden": true, "exclude-from-catalog": true}

type Reconciler struct {
	catalog store.Catalog
	meta    store.MetaStore
	// StrictReverse re-checks each loose reverse-scan hit by normalizing the
	// product's back-reference list and requiring the course ID in it.
	StrictReverse bool
	log           *logger.Logger
}

// Outcome is the reconciled commerce state of a course plus its call to action.
type Outcome struct {
	Info   domain.CommerceInfo
	Button *domain.CallToAction
}

func New(catalog store.Catalog, meta store.MetaStore, strictReverse bool, logg *logger.Logger) *Reconciler {
	if logg == nil {
		logg = logger.NewNop()
	}
	return &Reconciler{catalog: catalog, meta: meta, StrictReverse: strictReverse, log: logg}
}

// Reconcile resolves the product of a course (forward reference, else
// reverse lookup) and classifies access. It only returns store errors.
func (r *Reconciler) Reconcile(ctx context.Context, courseID int64) (Outcome, error) {
	var out Outcome
	info := &out.Info
	info.CatalogVisibility = domain.VisibilityVisible

	flags, err := r.meta.GetAllMeta(ctx, courseID)
	if err != nil {
		return out, errors.Wrapf(err, "course %d meta", courseID)
	}

	product, err := r.forward(ctx, courseID, flags[store.MetaCourseProducts], info)
	if err != nil {
		return out, err
	}
	if product == nil {
		if product, err = r.reverse(ctx, courseID, info); err != nil {
			return out, err
		}
	}
	if product != nil {
		if err := r.fill(ctx, product, info); err != nil {
			return out, err
		}
	}

	info.AccessType = rawAccess(flags, product != nil)
	info.AccessTypeFinal = info.AccessType
	if info.AccessTypeFinal == domain.AccessPaid && !info.Sellable() {
		info.AccessTypeFinal = domain.AccessClosed
		info.DowngradeReason = downgradeReason(*info)
	}

	url := strings.TrimSpace(text(flags[store.MetaCTAURL]))
	label := strings.TrimSpace(text(flags[store.MetaCTALabel]))
	if url != "" && label != "" {
		out.Button = &domain.CallToAction{URL: url, Label: label}
		if !IsCheckoutURL(url) {
			info.AccessTypeFinal = domain.AccessLead
			info.DowngradeReason = ""
		}
	}

	if info.AccessTypeFinal == domain.AccessFree && info.Published() {
		info.Inconsistency = true
		info.Warnings = append(info.Warnings, "free course has a published priced product attached")
	}

	r.log.Debug("commerce reconciled",
		"course", courseID, "path", info.LookupPath, "access", info.AccessType, "final", info.AccessTypeFinal)
	return out, nil
}

// forward uses the course's own product list. Several live candidates keep
// the first one and record a warning.
func (r *Reconciler) forward(ctx context.Context, courseID int64, raw any, info *domain.CommerceInfo) (*store.Product, error) {
	refs := relation.Normalize(raw)
	if refs.Unparseable {
		info.Warnings = append(info.Warnings, fmt.Sprintf("unparseable %s: %q", store.MetaCourseProducts, refs.Raw))
	}
	var live []*store.Product
	for _, id := range refs.IDs {
		p, err := r.catalog.GetByID(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "course %d product %d", courseID, id)
		}
		if p == nil || p.Status == string(domain.StatusTrash) {
			info.Warnings = append(info.Warnings, fmt.Sprintf("product %d is not live", id))
			continue
		}
		live = append(live, p)
	}
	if len(live) == 0 {
		return nil, nil
	}
	if len(live) > 1 {
		ids := make([]string, len(live))
		for i, p := range live {
			ids[i] = strconv.FormatInt(p.ID, 10)
		}
		info.Warnings = append(info.Warnings, "multiple live products: "+strings.Join(ids, ","))
	}
	info.LookupPath = PathForward
	return live[0], nil
}

// reverse scans catalog back-references for the course ID and picks the
// best-ranked hit.
func (r *Reconciler) reverse(ctx context.Context, courseID int64, info *domain.CommerceInfo) (*store.Product, error) {
	hits, err := r.catalog.ReverseScan(ctx, strconv.FormatInt(courseID, 10))
	if err != nil {
		return nil, errors.Wrapf(err, "course %d reverse scan", courseID)
	}
	var best *store.ScanHit
	for i := range hits {
		h := &hits[i]
		if h.Status == string(domain.StatusTrash) {
			continue
		}
		if r.StrictReverse {
			ok, err := r.backRefContains(ctx, h.ID, courseID)
			if err != nil {
				return nil, err
			}
			if !ok {
				r.log.Debug("reverse match rejected", "course", courseID, "product", h.ID)
				continue
			}
		}
		if best == nil || statusRank[h.Status] > statusRank[best.Status] {
			best = h
		}
	}
	if best == nil {
		return nil, nil
	}
	p, err := r.catalog.GetByID(ctx, best.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "course %d product %d", courseID, best.ID)
	}
	if p == nil {
		return nil, nil
	}
	info.LookupPath = PathReverse
	return p, nil
}

func (r *Reconciler) backRefContains(ctx context.Context, productID, courseID int64) (bool, error) {
	raw, err := r.meta.GetMeta(ctx, productID, store.MetaProductCourses)
	if err != nil {
		return false, errors.Wrapf(err, "product %d back-refs", productID)
	}
	return relation.Normalize(raw).Contains(courseID), nil
}

func (r *Reconciler) fill(ctx context.Context, p *store.Product, info *domain.CommerceInfo) error {
	id := p.ID
	info.HasProduct = true
	info.ProductID = &id

	if st, ok := domain.ParseStatus(p.Status); ok && st.Live() {
		info.ProductStatus = &st
	} else {
		info.Warnings = append(info.Warnings, fmt.Sprintf("product %d has unexpected status %q", id, p.Status))
	}

	pf, err := r.catalog.GetPriceFields(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "product %d price fields", id)
	}
	sku := strings.TrimSpace(pf.SKU)
	if skuSentinels[strings.ToLower(sku)] {
		info.Warnings = append(info.Warnings, fmt.Sprintf("product %d has no sku", id))
	} else {
		info.SKU = &sku
	}
	info.RegularPrice = parsePrice(pf.RegularPrice)
	info.SalePrice = parsePrice(pf.SalePrice)
	info.Price = parsePrice(pf.Price)
	if info.Price == nil {
		if info.SalePrice != nil {
			info.Price = info.SalePrice
		} else {
			info.Price = info.RegularPrice
		}
	}
	if hiddenVisibility[strings.ToLower(strings.TrimSpace(pf.Visibility))] {
		info.CatalogVisibility = domain.VisibilityHidden
	}
	return nil
}

// rawAccess applies the access precedence: free flag, product reference,
// subscription flags, approval flag, then free.
func rawAccess(flags map[string]any, hasProduct bool) domain.AccessType {
	switch {
	case truthy(flags[store.MetaFreeFlag]):
		return domain.AccessFree
	case hasProduct || !relation.Normalize(flags[store.MetaCourseProducts]).Empty():
		return domain.AccessPaid
	case truthy(flags[store.MetaSubscriptionOnly]) || !relation.Normalize(flags[store.MetaMembershipPlans]).Empty():
		return domain.AccessSubscribe
	case truthy(flags[store.MetaRequiresApproval]):
		return domain.AccessClosed
	}
	return domain.AccessFree
}

func downgradeReason(info domain.CommerceInfo) string {
	switch {
	case !info.HasProduct:
		return ReasonNoProduct
	case info.ProductStatus == nil || *info.ProductStatus != domain.StatusPublish:
		return ReasonProductNotPublished
	case info.CatalogVisibility != domain.VisibilityVisible:
		return ReasonProductHidden
	}
	return ReasonNoPrice
}

// IsCheckoutURL reports whether a call-to-action link leads to the store
// checkout or cart rather than to an external lead form.
func IsCheckoutURL(u string) bool {
	l := strings.ToLower(u)
	return strings.Contains(l, "/checkout") || strings.Contains(l, "/cart") || strings.Contains(l, "add-to-cart=")
}

func parsePrice(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 {
		return nil
	}
	return &f
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	switch strings.ToLower(strings.TrimSpace(text(v))) {
	case "1", "yes", "true", "on", "y":
		return true
	}
	return false
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}
