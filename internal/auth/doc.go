// Package auth obtains private and presence channel credentials from an
// application endpoint.
//
// The client never signs subscriptions itself. The endpoint receives the
// socket id and channel name as a form POST and answers with
// {"auth": "...", "channel_data": "..."}, which the Authorizer returns as
// channel.Credentials. Server errors and rate limiting are retried with
// jittered exponential backoff.
package auth
