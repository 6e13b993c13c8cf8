package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/app-sre/zabbix-sender/sender"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"
)

const (
	// maxRequestSize bounds the payload of an incoming sender request.
	maxRequestSize = 16 << 20

	defaultReadTimeout = 10 * time.Second
)

var (
	requestsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processed_requests",
		Help: "The total number of processed zabbix_sender requests",
	})
	requestsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invalid_requests",
		Help: "The total number of invalid zabbix_sender requests",
	})
	requestsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "denied_requests",
		Help: "The total number of zabbix_sender requests from addresses not on the whitelist",
	})
	trapperItemsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processed_trapper_items",
		Help: "The total number of processed trapper items",
	})
	trapperItemsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skipped_trapper_items",
		Help: "The total number of skipped trapper items",
	})
)

// ZServer is a loopback trapper server. It answers zabbix_sender requests
// the way a Zabbix server does and exposes every numeric item it receives
// as a gauge.
type ZServer struct {
	Config *ZServerConfig
	Values *prometheus.GaugeVec
}

// ZServerConfig defines a ZServer configuration. ServerReadTimeout bounds
// the wait for a request after accept and defaults to 10s.
type ZServerConfig struct {
	ServerListenAddress  string
	ServerListenPort     int64
	ServerIPWhitelist    []*net.IP
	ServerCIDRWhitelist  []*net.IPNet
	ServerReadTimeout    time.Duration
	MetricsListenAddress string
	MetricsListenPort    int64
	MetricsNamespace     string
	// Registerer receives the item gauge. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// NewZServer instantiates a new ZServer
func NewZServer(c *ZServerConfig) (*ZServer, error) {
	values := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.MetricsNamespace,
		Name:      "trapper_item_value",
		Help:      "Last value received for a trapper item",
	}, []string{"host", "key"})

	registerer := c.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := registerer.Register(values); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("could not register item gauge: %v", err)
		}
		values = are.ExistingCollector.(*prometheus.GaugeVec)
	}

	return &ZServer{Config: c, Values: values}, nil
}

// Run starts the ZServer and listens on the server and metrics port
func (s *ZServer) Run() error {
	// Start prom exporter
	metricsListenIPPort := fmt.Sprintf("%s:%d",
		s.Config.MetricsListenAddress,
		s.Config.MetricsListenPort,
	)
	go func() {
		http.Handle("/metrics", promhttp.Handler())

		log.Infof("Starting metrics server on %s", metricsListenIPPort)
		log.Fatal(http.ListenAndServe(metricsListenIPPort, nil))
	}()

	serverListenIPPort := fmt.Sprintf("%s:%d",
		s.Config.ServerListenAddress,
		s.Config.ServerListenPort,
	)
	l, err := net.Listen("tcp", serverListenIPPort)
	if err != nil {
		return fmt.Errorf("could not start listening: %v", err)
	}
	defer l.Close()

	log.Infof("Listening for zabbix sender requests on %s", serverListenIPPort)
	return s.Serve(l)
}

// Serve accepts connections on l until it is closed.
func (s *ZServer) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("error accepting connection: %v", err)
		}
		go s.handleRequest(conn)
	}
}

// allowed reports whether the remote address is whitelisted. An empty
// whitelist allows everyone.
func (s *ZServer) allowed(addr net.Addr) bool {
	if len(s.Config.ServerIPWhitelist) == 0 && len(s.Config.ServerCIDRWhitelist) == 0 {
		return true
	}

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return false
	}
	for _, ip := range s.Config.ServerIPWhitelist {
		if ip.Equal(tcpAddr.IP) {
			return true
		}
	}
	for _, ipnet := range s.Config.ServerCIDRWhitelist {
		if ipnet.Contains(tcpAddr.IP) {
			return true
		}
	}
	return false
}

// Handles incoming requests.
func (s *ZServer) handleRequest(conn net.Conn) {
	defer conn.Close()

	if !s.allowed(conn.RemoteAddr()) {
		log.Warnf("Denying request from %s", conn.RemoteAddr())
		requestsDenied.Inc()
		return
	}

	timeout := s.Config.ServerReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		log.Errorf("Error setting read deadline: %v", err)
		return
	}

	started := time.Now()

	payload, err := sender.ReadFrame(conn, maxRequestSize)
	if err != nil {
		if err != io.EOF {
			log.Errorf("Error reading request: %v", err)
		}
		requestsInvalid.Inc()
		return
	}

	request, err := sender.DecodeRequest(payload)
	if err != nil {
		log.Errorf("Error decoding request: %v", err)
		requestsInvalid.Inc()
		conn.Write(sender.EncodeResponse("failed", err.Error()))
		return
	}

	if request.Request != sender.RequestSenderData {
		log.Warnf("Unsupported request type: %s", request.Request)
		requestsInvalid.Inc()
		conn.Write(sender.EncodeResponse("failed", "unsupported request "+request.Request))
		return
	}

	processed, total := s.record(request.Data)

	info := sender.FormatInfo(processed, total-processed, total, time.Since(started).Seconds())
	if _, err := conn.Write(sender.EncodeResponse(sender.StatusSuccess, info)); err != nil {
		log.Errorf("Error writing response: %v", err)
		return
	}
	requestsProcessed.Inc()
}

// record sets the gauge of every numeric item and returns how many were
// processed out of the total.
func (s *ZServer) record(items []sender.TrapperItem) (processed, total int) {
	for _, trapperItem := range items {
		total++

		if trapperItem.Host == "" || trapperItem.FullKey == "" {
			log.Warnf("Skipping item without host or key: %+v", trapperItem)
			trapperItemsSkipped.Inc()
			continue
		}

		value, err := trapperItem.ParseFloat64()
		if err != nil {
			log.Warnf("Skipping metric: %s (%s)", trapperItem.FullKey, err.Error())
			trapperItemsSkipped.Inc()
			continue
		}

		s.Values.WithLabelValues(trapperItem.Host, trapperItem.FullKey).Set(value)
		processed++
		trapperItemsProcessed.Inc()

		log.Debugf("[%s] %s %s: %f", trapperItem.Host, trapperItem.Key(), trapperItem.Args(), value)
	}
	return processed, total
}
