// Package proxy serves the task UI through the interception layer.
//
// Requests under the API prefix go to the remote API and everything else goes
// to the static origin; both legs run through an intercept.Interceptor so the
// cache strategies apply. Mutations that fail to reach the API are queued and
// answered with 202 Accepted.
//
// The proxy also exposes two control endpoints:
//
//	POST /_todosync/sync?tag=<tag>   fire the background sync trigger
//	GET  /_todosync/status           report queue and channel state
package proxy
