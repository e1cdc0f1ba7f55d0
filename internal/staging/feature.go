package staging

import "encoding/json"

// Asset is one named file of a feature: a source location before
// staging, the final bucket location after.
type Asset struct {
	Href        string   `json:"href"`
	Title       string   `json:"title,omitempty"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Feature is a catalog item with its downloadable assets. Geometry
// and properties pass through untouched; staging only rewrites asset
// hrefs.
type Feature struct {
	Type       string            `json:"type,omitempty"`
	ID         string            `json:"id"`
	Collection string            `json:"collection,omitempty"`
	Geometry   json.RawMessage   `json:"geometry,omitempty"`
	Bbox       json.RawMessage   `json:"bbox,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
	Assets     map[string]*Asset `json:"assets"`
	Links      json.RawMessage   `json:"links,omitempty"`
}

// ItemCollection is the feature-collection payload of one staging
// request.
type ItemCollection struct {
	Type     string     `json:"type,omitempty"`
	Features []*Feature `json:"features"`
}

// AssetTransfer pairs an asset's source href with its destination
// object key. The request's transfer set is the authoritative
// rollback set: on batch failure every entry is deleted, whether or
// not its own task succeeded.
type AssetTransfer struct {
	SourceURL string
	Key       string
}
