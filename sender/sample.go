package sender

import (
	"time"
)

// Sample is a single trapper item: the value of key on host at clock.
// Setters return the same Sample so one can be built incrementally; the
// required fields are only checked when the sample is serialized.
type Sample struct {
	Host  string
	Key   string
	Value string
	// Clock is the unix timestamp of the value. Left unset, it is "now" at
	// serialization time.
	Clock int64

	valueSet bool
	clockSet bool
}

// NewSample returns an empty Sample.
func NewSample() *Sample {
	return &Sample{}
}

// UsingHost sets the host the item belongs to.
func (s *Sample) UsingHost(host string) *Sample {
	s.Host = host
	return s
}

// UsingKey sets the item key.
func (s *Sample) UsingKey(key string) *Sample {
	s.Key = key
	return s
}

// UsingValue sets the item value.
func (s *Sample) UsingValue(value string) *Sample {
	s.Value = value
	s.valueSet = true
	return s
}

// UsingClock sets the timestamp of the value.
func (s *Sample) UsingClock(t time.Time) *Sample {
	s.Clock = t.Unix()
	s.clockSet = true
	return s
}

// UsingDestination sets host and key from a configured destination.
func (s *Sample) UsingDestination(d Destination) *Sample {
	s.Host = d.HostName
	s.Key = d.Key
	return s
}

// sampleJSON is the wire form of a Sample. Field order is the order the
// keys are written in.
type sampleJSON struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock"`
}

func (s *Sample) validate() error {
	switch {
	case s.Host == "":
		return validationErrorf(`you have not set the "host" value on your sample, use UsingHost() to do that`)
	case s.Key == "":
		return validationErrorf(`you have not set the "key" value on your sample, use UsingKey() to do that`)
	case !s.valueSet && s.Value == "":
		return validationErrorf(`you have not set the "value" value on your sample, use UsingValue() to do that`)
	}
	return nil
}

func (s *Sample) serialize(now func() time.Time) (sampleJSON, error) {
	if err := s.validate(); err != nil {
		return sampleJSON{}, err
	}

	clock := s.Clock
	if !s.clockSet && clock == 0 {
		clock = now().Unix()
	}

	return sampleJSON{
		Host:  s.Host,
		Key:   s.Key,
		Value: s.Value,
		Clock: clock,
	}, nil
}
