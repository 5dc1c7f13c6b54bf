package raucwebsvc

// Slot is a storage partition as reported by `rauc status`.
type Slot struct {
	State      string `json:"state" yaml:"state"`
	BootStatus string `json:"boot_status,omitempty" yaml:"boot_status,omitempty"`
	Device     string `json:"device" yaml:"device"`
	Type       string `json:"type" yaml:"type"`
	Bootname   string `json:"bootname" yaml:"bootname"`
	Class      string `json:"class" yaml:"class"`
	Mountpoint string `json:"mountpoint,omitempty" yaml:"mountpoint,omitempty"`
}

// Status is the payload of GET /api/status. Slots keeps the server's order;
// each entry maps a slot name (e.g. "rootfs.0") to its state.
type Status struct {
	Compatible           string            `json:"compatible" yaml:"compatible"`
	Variant              string            `json:"variant,omitempty" yaml:"variant,omitempty"`
	Booted               string            `json:"booted" yaml:"booted"`
	BootPrimary          string            `json:"boot_primary" yaml:"boot_primary"`
	Slots                []map[string]Slot `json:"slots" yaml:"slots"`
	ArtifactRepositories []interface{}     `json:"artifact-repositories" yaml:"artifact-repositories"`
}

type BundleImage struct {
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Size     int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// BundleInfo is the payload of GET /api/bundle-info, describing the bundle
// most recently uploaded.
type BundleInfo struct {
	Compatible  string                   `json:"compatible" yaml:"compatible"`
	Version     string                   `json:"version" yaml:"version"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Build       string                   `json:"build" yaml:"build"`
	Format      string                   `json:"format" yaml:"format"`
	Hooks       []interface{}            `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	Hash        string                   `json:"hash,omitempty" yaml:"hash,omitempty"`
	Images      []map[string]BundleImage `json:"images,omitempty" yaml:"images,omitempty"`
}

// AppConfig carries the web UI theming.
type AppConfig struct {
	LogoURL         string `json:"logo_url,omitempty" yaml:"logo_url,omitempty"`
	ProjectName     string `json:"project_name" yaml:"project_name"`
	BackgroundColor string `json:"background_color" yaml:"background_color"`
	ForegroundColor string `json:"foreground_color" yaml:"foreground_color"`
	PrimaryColor    string `json:"primary_color" yaml:"primary_color"`
}
