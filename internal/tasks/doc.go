// Package tasks is a client for the remote task API.
//
// The API has been served under more than one resource path, so a Client
// holds an ordered list of candidate endpoints and moves to the next one only
// when the current one answers 404. Mutations that cannot reach the server
// are handed to the pending-action queue instead of failing outright.
//
// The package also carries the list math the UI applies to task pages
// (filtering and pagination) and the realtime task events.
package tasks
