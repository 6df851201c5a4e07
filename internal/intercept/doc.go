// Package intercept implements the network interception layer as an
// http.RoundTripper.
//
// Strategy is chosen by the request's origin:
//
//	static origin → cache-first: static partition, then network (200s stored)
//	API origin    → GET: network-first, dynamic partition fallback, then the
//	                synthetic offline payload for known resource paths
//	              → other methods: network only
//	anything else → network only
//
// The layer never queues mutations. Callers that see a transport failure on a
// non-GET request decide whether to enqueue it (see internal/queue).
package intercept
