// Package client assembles a complete realtime client: a WebSocket transport
// factory, the connection state machine, the event router and the channel
// registry.
//
// Typical use:
//
//	c, err := client.New(client.Config{AppKey: "key", Host: "ws-mt1.pusher.com", Port: 443})
//	ch, _ := c.Subscribe(ctx, "room1")
//	ch.Bind("new-message", func(data string) { ... })
//	c.Connect()
//
// Subscriptions may be made before or after Connect; every tracked channel is
// subscribed again whenever a new session is established.
package client
