package heightfield

import "encoding/json"

// SchemaVersion tags exported snapshots. Imports accept any version but
// record what they saw.
const SchemaVersion = "1.0"

// Snapshot is the persisted/exported shape of a field. Cell keys use the
// canonical "x,y" form; an absent key means height 0.
type Snapshot struct {
	Cells             map[string]int `json:"cells"`
	ExceptionEntities []string       `json:"exceptionEntities"`
	Enabled           bool           `json:"enabled"`
	SchemaVersion     string         `json:"schemaVersion"`
	LastUpdated       int64          `json:"lastUpdated"`
}

func (s Snapshot) MarshalBlob() ([]byte, error) {
	return json.Marshal(s)
}

func snapshotFromBlob(blob []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
