package types

import (
	"time"
)

type AssetType string

const (
	AssetTypeStock AssetType = "STOCK"
	AssetTypeEtf   AssetType = "ETF"
	AssetTypeBond  AssetType = "BOND"
)

// Asset is a tradable instrument as stored in the price database.
// Strategies and the rebalancer refer to assets by Ticker only.
type Asset struct {
	Id         int       `json:"id"`
	Ticker     string    `json:"ticker"`
	Name       string    `json:"name"`
	Type       AssetType `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
