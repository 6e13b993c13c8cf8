package sender

import (
	"encoding/json"
	"time"
)

// RequestSenderData is the request tag of a zabbix_sender batch.
const RequestSenderData = "sender data"

// Batch is the set of samples submitted in one trapper request. Samples
// are serialized in insertion order.
type Batch struct {
	Request string
	Samples []*Sample

	now func() time.Time
}

// NewBatch returns an empty batch tagged "sender data".
func NewBatch() *Batch {
	return &Batch{Request: RequestSenderData, now: time.Now}
}

// Add appends a sample to the batch.
func (b *Batch) Add(s *Sample) *Batch {
	b.Samples = append(b.Samples, s)
	return b
}

type batchJSON struct {
	Request string       `json:"request"`
	Data    []sampleJSON `json:"data"`
}

// MarshalJSON renders {"request":...,"data":[...]}. An empty batch has an
// empty data array, never null. Samples without a clock get the current
// time.
func (b *Batch) MarshalJSON() ([]byte, error) {
	now := b.now
	if now == nil {
		now = time.Now
	}

	out := batchJSON{
		Request: b.Request,
		Data:    make([]sampleJSON, 0, len(b.Samples)),
	}
	for _, s := range b.Samples {
		item, err := s.serialize(now)
		if err != nil {
			return nil, err
		}
		out.Data = append(out.Data, item)
	}

	return json.Marshal(out)
}
