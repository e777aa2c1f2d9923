// Package channel tracks channel subscriptions for a connection.
//
// A Registry owns every Channel the application subscribed to. Channels are
// plain, private (name prefix "private-") or presence ("presence-"). Private
// and presence subscriptions need server-generated credentials, which come
// from an Authorizer. The registry resends every subscription when a new
// session is established, so subscriptions survive reconnects.
//
// Presence channels keep the member list the server reports and re-emit
// membership changes as "pusher:member_added" and "pusher:member_removed"
// events on the channel.
package channel
