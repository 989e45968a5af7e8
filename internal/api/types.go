package api

import "matchboard/internal/domain"

type AccountsResponse struct {
	Accounts []domain.TrackedAccount `json:"accounts"`
	Count    int                     `json:"count"`
}

type MatchesResponse struct {
	Matches []domain.RawMatch `json:"matches"`
	Count   int               `json:"count"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

type ChampionData struct {
	Type    string              `json:"type"`
	Version string              `json:"version"`
	Data    map[string]Champion `json:"data"`
}

// Champion is keyed by its provider id ("MonkeyKing"); Key holds the
// numeric game id as a string ("62").
type Champion struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Name  string `json:"name"`
	Image Image  `json:"image"`
}

// ItemData is keyed by the numeric item id as a string.
type ItemData struct {
	Type    string          `json:"type"`
	Version string          `json:"version"`
	Data    map[string]Item `json:"data"`
}

type Item struct {
	Name  string `json:"name"`
	Image Image  `json:"image"`
}

type SummonerSpellData struct {
	Type    string                   `json:"type"`
	Version string                   `json:"version"`
	Data    map[string]SummonerSpell `json:"data"`
}

type SummonerSpell struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Name  string `json:"name"`
	Image Image  `json:"image"`
}

type Image struct {
	Full   string `json:"full"`
	Sprite string `json:"sprite"`
	Group  string `json:"group"`
}
