package model

// MassiveRecoverResult summarizes a paginated recovery sweep. Failures on
// individual receipts never abort the sweep; they are counted and listed.
type MassiveRecoverResult struct {
	Status        string   `json:"status"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	FailedIDs     []string `json:"failedIds,omitempty"`
	PagesScanned  int      `json:"pagesScanned"`
	ItemsScanned  int      `json:"itemsScanned"`
	ElapsedMillis int64    `json:"elapsedMillis"`
}
