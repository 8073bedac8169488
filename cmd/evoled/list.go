package main

// ListItem is one selectable entry (a playlist).
type ListItem struct {
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// SelectableList is a list with a cursor. Selected is always a valid index
// when Items is non-empty and 0 otherwise.
type SelectableList struct {
	Items    []ListItem `json:"items"`
	Selected int        `json:"selected"`
}

// NewSelectableList copies items and selects the first one.
func NewSelectableList(items []ListItem) SelectableList {
	return SelectableList{Items: append([]ListItem(nil), items...)}
}

// MoveSelection moves the cursor by delta, clamped to the list bounds, and
// returns the new index.
func (l *SelectableList) MoveSelection(delta int) int {
	if len(l.Items) == 0 {
		l.Selected = 0
		return 0
	}
	l.Selected = clampInt(l.Selected+delta, 0, len(l.Items)-1)
	return l.Selected
}

// SelectedItem returns the item under the cursor.
func (l SelectableList) SelectedItem() (ListItem, bool) {
	if len(l.Items) == 0 {
		return ListItem{}, false
	}
	return l.Items[l.Selected], true
}

// Window returns the [start, end) range of rows to show so that the cursor
// stays roughly centred and the window stays full near the end of the list.
func (l SelectableList) Window(rows int) (start, end int) {
	n := len(l.Items)
	if rows <= 0 || n == 0 {
		return 0, 0
	}
	start = l.Selected - rows/2
	if start > n-rows {
		start = n - rows
	}
	if start < 0 {
		start = 0
	}
	end = start + rows
	if end > n {
		end = n
	}
	return start, end
}
