package licenses

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgpagination "github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

type ListParams struct {
	UserID uuid.UUID
	pkgpagination.Params
}

type ListResult struct {
	Items  []ListItem `json:"items"`
	Cursor string     `json:"cursor"`
}

type ListItem struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	MP3       bool      `json:"mp3"`
	WAV       bool      `json:"wav"`
	Trackout  bool      `json:"trackout"`
	Discounts bool      `json:"discounts"`
	Enabled   bool      `json:"enabled"`
	Default   bool      `json:"default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listQuery struct {
	userID uuid.UUID
	page   pkgpagination.Query
}

// ToListItem renders a license row for the API.
func ToListItem(m models.License) ListItem {
	return ListItem{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		MP3:       m.MP3,
		WAV:       m.WAV,
		Trackout:  m.Trackout,
		Discounts: m.Discounts,
		Enabled:   m.Enabled,
		Default:   m.IsDefault,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
