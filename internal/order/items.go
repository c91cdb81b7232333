package order

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AddItem adds quantity of item with the given addon selection. A row with
// the same menu item, the same addon set and the same prices is incremented
// instead of duplicated; addon selection order does not matter. A price
// change since the row was added starts a new row at the current price.
func (o *Order) AddItem(item MenuItemRef, quantity int, addons []AddonRef, now time.Time) (*LineItem, error) {
	if !o.Mutable() {
		return nil, o.transitionError("add item", ErrOrderLocked)
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if !item.Available {
		return nil, ErrItemUnavailable.WithMessage("menu item %q is unavailable", item.Name)
	}
	if item.Price < 0 {
		return nil, ErrInvalidPrice
	}
	seen := make(map[uuid.UUID]bool, len(addons))
	for _, a := range addons {
		if a.Price < 0 {
			return nil, ErrInvalidPrice.WithMessage("addon %q has a negative price", a.Name)
		}
		if seen[a.ID] {
			return nil, ErrInvalidAddon.WithMessage("addon %s selected twice", a.ID)
		}
		seen[a.ID] = true
	}

	key := addonKey(addons)
	idx := slices.IndexFunc(o.Items, func(it LineItem) bool {
		return it.MenuItemID == item.ID && it.UnitPrice == item.Price && addonKey(it.Addons) == key
	})

	var prev []LineItem
	if idx >= 0 {
		prev = cloneItems(o.Items)
		o.Items[idx].Quantity += quantity
	} else {
		prev = o.Items
		o.Items = append(cloneItems(o.Items), LineItem{
			ID:         uuid.New(),
			MenuItemID: item.ID,
			Name:       item.Name,
			UnitPrice:  item.Price,
			Quantity:   quantity,
			Addons:     append([]AddonRef{}, addons...),
		})
		idx = len(o.Items) - 1
	}
	if err := o.recalculate(); err != nil {
		o.Items = prev
		return nil, err
	}
	o.UpdatedAt = now
	added := o.Items[idx]
	return &added, nil
}

// SetQuantity overwrites a row's quantity. Zero removes the row.
func (o *Order) SetQuantity(lineID uuid.UUID, quantity int, now time.Time) error {
	if !o.Mutable() {
		return o.transitionError("change quantity", ErrOrderLocked)
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	idx := o.indexOf(lineID)
	if idx < 0 {
		return ErrLineItemNotFound.WithMessage("line item %s not found", lineID)
	}
	if quantity == 0 {
		o.removeAt(idx)
	} else {
		items := cloneItems(o.Items)
		items[idx].Quantity = quantity
		o.Items = items
	}
	if err := o.recalculate(); err != nil {
		return err
	}
	o.UpdatedAt = now
	return nil
}

// RemoveItem drops a row. Removing a row that is already gone succeeds and
// reports false, since concurrent removes can race.
func (o *Order) RemoveItem(lineID uuid.UUID, now time.Time) (bool, error) {
	if !o.Mutable() {
		return false, o.transitionError("remove item", ErrOrderLocked)
	}
	idx := o.indexOf(lineID)
	if idx < 0 {
		return false, nil
	}
	o.removeAt(idx)
	if err := o.recalculate(); err != nil {
		return false, err
	}
	o.UpdatedAt = now
	return true, nil
}

// Item returns the row with the given id.
func (o *Order) Item(lineID uuid.UUID) (LineItem, bool) {
	idx := o.indexOf(lineID)
	if idx < 0 {
		return LineItem{}, false
	}
	return o.Items[idx], true
}

func (o *Order) indexOf(lineID uuid.UUID) int {
	return slices.IndexFunc(o.Items, func(it LineItem) bool { return it.ID == lineID })
}

func (o *Order) removeAt(idx int) {
	items := make([]LineItem, 0, len(o.Items)-1)
	items = append(items, o.Items[:idx]...)
	o.Items = append(items, o.Items[idx+1:]...)
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// addonKey identifies a priced addon set independent of selection order.
func addonKey(addons []AddonRef) string {
	ids := make([]string, len(addons))
	for i, a := range addons {
		ids[i] = a.ID.String() + "@" + strconv.FormatInt(int64(a.Price), 10)
	}
	slices.Sort(ids)
	return strings.Join(ids, ",")
}
