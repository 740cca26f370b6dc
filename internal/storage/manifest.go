package storage

import "time"

const ManifestSuffix = ".manifest.json"

// Manifest is the sidecar written next to every export. It lets list and
// retention work without opening (or decrypting) the backup itself.
type Manifest struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Kind         string    `json:"kind"`
	Source       string    `json:"source"`
	Encrypted    bool      `json:"encrypted"`
	Compression  string    `json:"compression"`
	CreatedAt    time.Time `json:"created_at"`
	SizeBytes    int64     `json:"size_bytes"`
	Collections  []string  `json:"collections,omitempty"`
	Tiles        []string  `json:"tiles,omitempty"`
	TotalRecords int       `json:"total_records"`
	Note         string    `json:"note,omitempty"`
	ToolVersion  string    `json:"tool_version"`
}

func ManifestKey(objectKey string) string {
	return objectKey + ManifestSuffix
}
