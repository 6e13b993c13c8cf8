package sender

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// StatusSuccess is the only "response" value treated as success.
const StatusSuccess = "success"

// infoPattern captures processed, failed, total and seconds spent, in that
// order. Labels are not checked.
var infoPattern = regexp.MustCompile(`\w+: (\d+); \w+: (\d+); \w+: (\d+); [a-z ]+: (\d+\.\d+)`)

// Response is a parsed server acknowledgement.
type Response struct {
	Status         string
	Processed      int
	Failed         int
	Total          int
	ElapsedSeconds float64
	ElapsedHuman   string
}

// IsSuccess reports whether the server accepted the request.
func (r *Response) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Summary is a flat view of a Response.
type Summary struct {
	Success       bool    `json:"success"`
	HumanDuration string  `json:"humanDuration"`
	Processed     int     `json:"processed"`
	Failed        int     `json:"failed"`
	Total         int     `json:"total"`
	Duration      float64 `json:"duration"`
}

// Summary returns the response as a Summary.
func (r *Response) Summary() Summary {
	return Summary{
		Success:       r.IsSuccess(),
		HumanDuration: r.ElapsedHuman,
		Processed:     r.Processed,
		Failed:        r.Failed,
		Total:         r.Total,
		Duration:      r.ElapsedSeconds,
	}
}

// ResponseParser turns the JSON payload of an acknowledgement into a
// Response. A non-success status is not a parse failure.
type ResponseParser interface {
	Parse(payload []byte) (*Response, error)
}

// InfoParser reads the counters out of the free-text "info" field.
type InfoParser struct{}

// Parse implements ResponseParser.
func (InfoParser) Parse(payload []byte) (*Response, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed response %q", payload), Err: err}
	}

	status, err := stringField(fields, "response")
	if err != nil {
		return nil, err
	}

	info, err := stringField(fields, "info")
	if err != nil {
		return nil, err
	}

	matches := infoPattern.FindStringSubmatch(info)
	if matches == nil {
		return nil, protocolErrorf("response info did not match expected shape: %q", info)
	}

	var counts [3]int
	for i := range counts {
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return nil, &ProtocolError{Msg: fmt.Sprintf("invalid count %q in response info", matches[i+1]), Err: err}
		}
		counts[i] = n
	}

	seconds, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return nil, &ProtocolError{Msg: fmt.Sprintf("invalid duration %q in response info", matches[4]), Err: err}
	}

	return &Response{
		Status:         status,
		Processed:      counts[0],
		Failed:         counts[1],
		Total:          counts[2],
		ElapsedSeconds: seconds,
		ElapsedHuman:   Humanize(seconds),
	}, nil
}

func stringField(fields map[string]interface{}, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", protocolErrorf("invalid zabbix server response, missing `%s` field", name)
	}
	value, ok := raw.(string)
	if !ok {
		return "", protocolErrorf("invalid zabbix server response, `%s` field is not a string", name)
	}
	return value, nil
}

// FormatInfo renders the info text a server sends back.
func FormatInfo(processed, failed, total int, seconds float64) string {
	return fmt.Sprintf("processed: %d; failed: %d; total: %d; seconds spent: %f",
		processed, failed, total, seconds)
}

var durationUnits = []struct {
	below  float64
	scale  float64
	suffix string
}{
	{1e-6, 1e-9, "ns"},
	{1e-3, 1e-6, "µs"},
	{1, 1e-3, "ms"},
}

// Humanize renders seconds in the largest unit that keeps the value under
// 1000, rounded to three decimals. Values of a second or more stay in
// seconds.
func Humanize(seconds float64) string {
	for _, u := range durationUnits {
		if seconds < u.below {
			return formatRounded(seconds/u.scale) + " " + u.suffix
		}
	}
	return formatRounded(seconds) + " s"
}

func formatRounded(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
