package sender_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"time"

	"github.com/app-sre/zabbix-sender/sender"
	"github.com/sirupsen/logrus"
)

type ExampleServer struct {
	listener net.Listener
}

func NewExampleServer() *ExampleServer {
	listener, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		log.Fatal(err)
	}
	s := &ExampleServer{listener: listener}
	go s.listen()
	return s
}

func (s *ExampleServer) HostPort() (string, int) {
	addr := s.listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func (s *ExampleServer) listen() {
	conn, err := s.listener.Accept()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	payload, err := sender.ReadFrame(conn, 0)
	if err != nil {
		log.Fatal(err)
	}
	request, err := sender.DecodeRequest(payload)
	if err != nil {
		log.Fatal(err)
	}
	for _, item := range request.Data {
		fmt.Printf("%s %s %v %d\n", item.Host, item.FullKey, item.Value, item.Clock)
	}

	n := len(request.Data)
	conn.Write(sender.EncodeResponse(sender.StatusSuccess, sender.FormatInfo(n, 0, n, 0.000059)))
}

func Example_sending() {
	server := NewExampleServer()
	host, port := server.HostPort()

	logger := logrus.New()
	logger.Out = ioutil.Discard

	client, _ := sender.NewClient(host, port, sender.WithLogger(logger))
	client.Add(sender.NewSample().
		UsingHost("web-01").
		UsingKey("app.alert").
		UsingValue("disk almost full").
		UsingClock(time.Unix(1700000000, 0)))

	result, err := client.Send(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%+v\n", result.Response.Summary())

	//Output:
	//web-01 app.alert disk almost full 1700000000
	//{Success:true HumanDuration:59 µs Processed:1 Failed:0 Total:1 Duration:5.9e-05}
}
