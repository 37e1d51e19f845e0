package model

import "strings"

const (
	ModuleKeyYacht = "yacht"
	ModuleKeyDMS   = "dms"
)

// Module is one feature flag entry from GET /modules.
type Module struct {
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}

// AssetLabels names the tracked asset kind according to the enabled modules.
type AssetLabels struct {
	Singular     string `json:"singular"`
	Plural       string `json:"plural"`
	Short        string `json:"short"`
	YachtEnabled bool   `json:"yacht_enabled"`
	DMSEnabled   bool   `json:"dms_enabled"`
}

// DefaultAssetLabels is used when no module list is available.
func DefaultAssetLabels() AssetLabels {
	return AssetLabels{Singular: "Asset", Plural: "Assets", Short: "Asset"}
}

// ResolveAssetLabels derives asset labels from the module flags.
func ResolveAssetLabels(modules []Module) AssetLabels {
	var yachtEnabled, dmsEnabled bool
	for _, module := range modules {
		switch strings.ToLower(strings.TrimSpace(module.Key)) {
		case ModuleKeyYacht:
			yachtEnabled = yachtEnabled || module.Enabled
		case ModuleKeyDMS:
			dmsEnabled = dmsEnabled || module.Enabled
		}
	}
	labels := DefaultAssetLabels()
	switch {
	case yachtEnabled && dmsEnabled:
		labels = AssetLabels{Singular: "Yacht / Vehicle", Plural: "Yachts / Vehicles", Short: "Asset"}
	case dmsEnabled:
		labels = AssetLabels{Singular: "Vehicle", Plural: "Vehicles", Short: "Vehicle"}
	case yachtEnabled:
		labels = AssetLabels{Singular: "Yacht", Plural: "Yachts", Short: "Yacht"}
	}
	labels.YachtEnabled = yachtEnabled
	labels.DMSEnabled = dmsEnabled
	return labels
}
