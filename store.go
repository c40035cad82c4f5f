package server

import "sort"

// StoreItem is one purchasable good. Buying an item consumes it immediately;
// there is no inventory.
type StoreItem struct {
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Heal        int    `json:"heal"`
	Description string `json:"description"`
}

var storeCatalog = buildStoreCatalog()

func buildStoreCatalog() map[string]StoreItem {
	items := []StoreItem{
		{
			Name:        "hp-small",
			Price:       3,
			Heal:        5,
			Description: "Restores a little health on purchase.",
		},
		{
			Name:        "hp-big",
			Price:       5,
			Heal:        10,
			Description: "Restores a chunk of health on purchase.",
		},
	}
	catalog := make(map[string]StoreItem, len(items))
	for _, item := range items {
		catalog[item.Name] = item
	}
	return catalog
}

// StoreItems returns the catalog sorted by name, for the list-store-items
// reply.
func StoreItems() []StoreItem {
	items := make([]StoreItem, 0, len(storeCatalog))
	for _, item := range storeCatalog {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}
