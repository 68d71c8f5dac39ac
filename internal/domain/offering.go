package domain

// CatalogItem is immutable reference data for a sellable medication or
// diagnostic test.
type CatalogItem struct {
	ID                   string
	Name                 string
	PrescriptionRequired bool
}

// SellerOffering is the per (seller, item) stock and price record. Stock is
// the only field the order core mutates, and only through the inventory
// ledger's conditional reserve/release.
type SellerOffering struct {
	SellerID string
	ItemID   string
	Stock    int64
	Price    int64 // smallest currency unit
}
