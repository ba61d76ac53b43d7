package transfer

import "github.com/bachasia/schedy-sub001/internal/models"

// PostCreation is the authoring request for scheduling content. One post row
// is created per selected profile, so a partial failure on one network never
// rolls back another's success.
type PostCreation struct {
	Caption          string  `json:"caption" validate:"max=5000"`
	Title            string  `json:"title" validate:"max=200"`
	MediaKind        string  `json:"media_kind" validate:"omitempty,oneof=image video carousel"`
	Format           string  `json:"format" validate:"omitempty,oneof=standard reel short story"`
	ScheduledTime    string  `json:"scheduled_time"`
	SelectedProfiles []int64 `json:"selected_profiles" validate:"required,min=1"`
	AssetIDs         []int64 `json:"asset_ids"`
}

type PostCreationResult struct {
	PostIDs []int64  `json:"post_ids"`
	Errors  []string `json:"errors,omitempty"`
}

// PostDetail is a single post with its attached media, in display order.
type PostDetail struct {
	Post  *models.Post        `json:"post"`
	Media []*models.PostMedia `json:"media"`
}
