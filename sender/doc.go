/*
Package sender provides a client for the Zabbix trapper protocol, the one
used by zabbix_sender to push values to a Zabbix server or proxy.

Samples are buffered on a Client and shipped in a single framed request per
Send. The server acknowledgement is parsed into a Response carrying the
processed, failed and total item counts and the time the server spent.

Example

	client, err := sender.NewClient("zabbix.example.com", sender.DefaultPort)

	client.Add(sender.NewSample().
		UsingHost("web-01").
		UsingKey("app.alert").
		UsingValue("disk almost full"))

	result, err := client.Send(context.Background())
	fmt.Println(result.Response.Summary())
*/
package sender
