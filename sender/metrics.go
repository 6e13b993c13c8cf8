package sender

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zabbix_sender_requests_total",
		Help: "The total number of zabbix_sender requests by result",
	}, []string{"result"})
	itemsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zabbix_sender_items_total",
		Help: "The total number of trapper items reported by the server, by state",
	}, []string{"state"})
)

// Request results.
const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"
	resultDisabled = "disabled"
)

func observeResponse(r *Response) {
	itemsSent.WithLabelValues("processed").Add(float64(r.Processed))
	itemsSent.WithLabelValues("failed").Add(float64(r.Failed))
}
