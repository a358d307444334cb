package models

import "time"

// ExportKindDossier is the full player PDF: bio, career, reports, charts.
const ExportKindDossier = "dossier"

// ExportCacheEntry records the PDF generated for a player's report set.
type ExportCacheEntry struct {
	PlayerID    int64     `json:"player_id"`
	Kind        string    `json:"kind"`
	Fingerprint string    `json:"fingerprint"`
	FilePath    string    `json:"file_path"`
	WithSummary bool      `json:"with_summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FilterConfig is a named catalogue filter saved by one user.
type FilterConfig struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"user_id"`
	Name      string       `json:"name"`
	Filters   PlayerFilter `json:"filters"`
	UpdatedAt time.Time    `json:"updated_at"`
}
