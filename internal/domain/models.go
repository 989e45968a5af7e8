package domain

type TrackedAccount struct {
	Puuid      string `json:"puuid"`
	GameName   string `json:"gameName"`
	TagLine    string `json:"tagLine"`
	Region     string `json:"region,omitempty"`
	StreamerID *int   `json:"streamerId,omitempty"`
	SyncedAt   *int64 `json:"syncedAt,omitempty"`
}

type RawMatch struct {
	Summary      MatchSummary  `json:"summary"`
	Participants []Participant `json:"participants"`
}

type MatchSummary struct {
	GameID int64 `json:"gameId"`

	// unix seconds
	StartedAt *int64 `json:"startedAt"`

	// seconds
	Duration *int `json:"duration"`
	QueueID  *int `json:"queueId"`
}

type Participant struct {
	ChampionID         int    `json:"championId"`
	ChampLevel         int    `json:"champLevel"`
	Kills              int    `json:"kills"`
	Deaths             int    `json:"deaths"`
	Assists            int    `json:"assists"`
	TotalMinionsKilled int    `json:"totalMinionsKilled"`
	Item0              int    `json:"item0"`
	Item1              int    `json:"item1"`
	Item2              int    `json:"item2"`
	Item3              int    `json:"item3"`
	Item4              int    `json:"item4"`
	Item5              int    `json:"item5"`
	Item6              int    `json:"item6"`
	Summoner1ID        int    `json:"summoner1Id"`
	Summoner2ID        int    `json:"summoner2Id"`
	Lane               string `json:"lane"`
	Puuid              string `json:"puuid"`
	RiotIDGameName     string `json:"riotIdGameName"`
	RiotIDTagline      string `json:"riotIdTagline"`
	TeamID             int    `json:"teamId,omitempty"` // 100/200 when the upstream sends it
	Win                bool   `json:"win"`
}

func (p Participant) Items() []int {
	return []int{p.Item0, p.Item1, p.Item2, p.Item3, p.Item4, p.Item5}
}

func (m RawMatch) StartedAtOrZero() int64 {
	if m.Summary.StartedAt == nil {
		return 0
	}
	return *m.Summary.StartedAt
}

func (m RawMatch) DurationOrZero() int {
	if m.Summary.Duration == nil {
		return 0
	}
	return *m.Summary.Duration
}

type Rank struct {
	Puuid        string `json:"puuid"`
	Timestamp    int64  `json:"timestamp"`
	Tier         string `json:"tier"`
	Division     string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	QueueID      int    `json:"queueId"`
}

// MatchFilter narrows a match listing. Nil fields are not sent upstream.
type MatchFilter struct {
	ChampionID   *int    `json:"championId,omitempty"`
	Lane         *string `json:"lane,omitempty"`
	Win          *bool   `json:"win,omitempty"`
	QueueID      *int    `json:"queueId,omitempty"`
	StartedAtMin *int64  `json:"startedAtMin,omitempty"`
	StartedAtMax *int64  `json:"startedAtMax,omitempty"`
}

type DisplayMatch struct {
	ID              int64        `json:"id"`
	TrackedPuuid    string       `json:"trackedPuuid"`
	StartedAt       int64        `json:"startedAt"`
	DurationSeconds int          `json:"durationSeconds"`
	QueueType       string       `json:"queueType"`
	TimeAgo         string       `json:"timeAgo"`
	Result          string       `json:"result"`
	Duration        string       `json:"duration"`
	Champion        ChampionView `json:"champion"`
	KDA             KDA          `json:"kda"`
	KDARatio        string       `json:"kdaRatio"`
	SummonerSpells  []string     `json:"summonerSpells"`
	Items           []string     `json:"items"`
	Trinket         string       `json:"trinket"`
	Stats           MatchStats   `json:"stats"`
	Placement       int          `json:"placement"`
	PlacementLabel  string       `json:"placementLabel"`
	PerformanceTag  string       `json:"performanceTag"`
	Teams           Teams        `json:"teams"`
}

type ChampionView struct {
	ID    int    `json:"id"`
	Image string `json:"image"`
	Level int    `json:"level"`
}

type KDA struct {
	Kills   int `json:"kills"`
	Deaths  int `json:"deaths"`
	Assists int `json:"assists"`
}

type MatchStats struct {
	KillParticipation string `json:"pKill"`
	CS                string `json:"cs"`
	CSPerMin          string `json:"csPerMin"`
	Rank              string `json:"rank"`
}

type Teams struct {
	Blue []TeamMember `json:"blue"`
	Red  []TeamMember `json:"red"`
}

type TeamMember struct {
	Name     string `json:"name"`
	Champion string `json:"champion"`
}
