package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// WriteCSV renders entries as a CSV document with a header row.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"occurred_at", "actor_id", "actor_email", "action", "entity", "entity_id", "meta"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			e.OccurredAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.ActorID, 10),
			e.ActorEmail,
			e.Action,
			e.Entity,
			e.EntityID,
			string(e.Meta),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
