package types

import "time"

// SearchStatus 搜索记录状态
type SearchStatus string

const (
	SearchStatusCompleted SearchStatus = "completed"
	SearchStatusFailed    SearchStatus = "failed"
)

// SearchRecord 一次搜索的历史记录
type SearchRecord struct {
	SearchID         string       `json:"searchId"`
	JobDescription   string       `json:"jobDescription"`
	CreatedAt        time.Time    `json:"createdAt"`
	TotalMatches     int          `json:"totalMatches"`
	ShortlistedCount int          `json:"shortlistedCount"`
	SearchStatus     SearchStatus `json:"searchStatus"`
	IsJobRequisition bool         `json:"isJobRequisition"`
}

// SearchResult 一次匹配的结果，也是搜索缓存中保存的数据
type SearchResult struct {
	SearchID     string    `json:"searchId"`
	Profiles     []Profile `json:"profiles"`
	TotalMatches int       `json:"totalMatches"`
}

// Clone 深拷贝
func (r SearchResult) Clone() SearchResult {
	out := r
	if r.Profiles != nil {
		out.Profiles = append([]Profile(nil), r.Profiles...)
	}
	return out
}
