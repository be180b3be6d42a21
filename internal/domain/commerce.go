package domain

// CommerceInfo is the reconciled commerce state of one course.
// Nil pointers mean "absent", which the payload keeps as JSON null.
type CommerceInfo struct {
	HasProduct        bool       `json:"has_product"`
	ProductID         *int64     `json:"product_id"`
	ProductStatus     *Status    `json:"product_status"`
	SKU               *string    `json:"sku"`
	Price             *float64   `json:"price"`
	RegularPrice      *float64   `json:"regular_price"`
	SalePrice         *float64   `json:"sale_price"`
	CatalogVisibility Visibility `json:"catalog_visibility"`

	AccessType      AccessType `json:"access_type"`
	AccessTypeFinal AccessType `json:"access_type_final"`
	DowngradeReason string     `json:"downgrade_reason,omitempty"`
	Inconsistency   bool       `json:"inconsistency_flag"`

	// LookupPath is "forward", "reverse" or "" when nothing was found.
	LookupPath string   `json:"lookup_path,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Sellable reports whether the product backing a paid course is usable:
// live, published, visible in the catalog and priced.
func (c CommerceInfo) Sellable() bool {
	return c.Published() && c.CatalogVisibility == VisibilityVisible
}

// Published reports whether a live, published, priced product is attached.
// Catalog visibility does not matter here.
func (c CommerceInfo) Published() bool {
	return c.HasProduct &&
		c.ProductStatus != nil && *c.ProductStatus == StatusPublish &&
		c.Price != nil
}
