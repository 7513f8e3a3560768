package backup

import (
	"time"
)

// Stats summarizes upload lifecycle counts across the store.
type Stats struct {
	Total       int     `json:"total"`
	Uploaded    int     `json:"uploaded"`
	Pending     int     `json:"pending"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// EngineStats is the per-engine breakdown returned by DetailedStats.
type EngineStats struct {
	Engine           Engine  `json:"engine"`
	Total            int     `json:"total"`
	Uploaded         int     `json:"uploaded"`
	Pending          int     `json:"pending"`
	Failed           int     `json:"failed"`
	SuccessRate      float64 `json:"success_rate"`
	OldestPendingAge string  `json:"oldest_pending_age,omitempty"`
}

// Stats scans every engine directory and aggregates lifecycle counts.
// success_rate is uploaded/total, 0 when the store is empty.
func (s *Store) Stats() (Stats, error) {
	var out Stats
	for _, e := range Engines() {
		es, err := s.engineStats(e)
		if err != nil {
			return Stats{}, err
		}
		out.Total += es.Total
		out.Uploaded += es.Uploaded
		out.Pending += es.Pending
		out.Failed += es.Failed
	}
	if out.Total > 0 {
		out.SuccessRate = float64(out.Uploaded) / float64(out.Total)
	}
	return out, nil
}

// DetailedStats returns the per-engine breakdown, including the age of the
// oldest pending record per engine.
func (s *Store) DetailedStats() ([]EngineStats, error) {
	out := make([]EngineStats, 0, len(Engines()))
	for _, e := range Engines() {
		es, err := s.engineStats(e)
		if err != nil {
			return nil, err
		}
		out = append(out, es)
	}
	return out, nil
}

func (s *Store) engineStats(e Engine) (EngineStats, error) {
	es := EngineStats{Engine: e}

	leads, err := s.scanDir(s.dir(e, leadsDir))
	if err != nil {
		return es, err
	}
	var oldestPending time.Time
	for _, ent := range leads {
		es.Total++
		switch ent.Record.UploadStatus {
		case StatusUploaded:
			es.Uploaded++
		default:
			es.Pending++
			if t, err := time.Parse(time.RFC3339, ent.Record.SavedAt); err == nil {
				if oldestPending.IsZero() || t.Before(oldestPending) {
					oldestPending = t
				}
			}
		}
	}

	failed, err := s.scanDir(s.dir(e, failedDir))
	if err != nil {
		return es, err
	}
	es.Total += len(failed)
	es.Failed = len(failed)

	if es.Total > 0 {
		es.SuccessRate = float64(es.Uploaded) / float64(es.Total)
	}
	if !oldestPending.IsZero() {
		es.OldestPendingAge = time.Since(oldestPending).Round(time.Second).String()
	}
	return es, nil
}
