package controllers

import "github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"

// enqueueReq adds one item (score/member) or several (items). A present
// "items" array takes precedence, even when empty.
type enqueueReq struct {
	Score  float64      `json:"score"`
	Member string       `json:"member"`
	Items  []store.Item `json:"items"`
}

func (r enqueueReq) items() []store.Item {
	if r.Items != nil {
		return r.Items
	}
	return []store.Item{{Score: r.Score, Member: r.Member}}
}

type removeReq struct {
	Member string `json:"member"`
}

type itemsResp struct {
	Key   string       `json:"key"`
	Items []store.Item `json:"items"`
}
