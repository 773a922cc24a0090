package sqlcgen

import "time"

type Group struct {
	ID        int64
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RegisteredView struct {
	ID        int64
	ViewID    int64
	Workspace string
}

type GroupView struct {
	ID          int64
	GroupID     int64
	ViewID      int64
	Name        *string
	ShortName   *string
	Description *string
	Cod         *string
	IsPrimary   *bool
	IsSublayer  *bool
	SubLayers   []int64
}

type GroupLayerStats struct {
	GroupID       int64
	Code          string
	Name          string
	Layers        int64
	PrimaryLayers int64
	Sublayers     int64
}
