package resource

// Journal is one activity entry recorded when a work package is saved.
type Journal struct {
	ID            int64    `json:"id"`
	WorkPackageID string   `json:"work_package_id"`
	Version       int64    `json:"version"`
	Changed       []string `json:"changed"`
}
