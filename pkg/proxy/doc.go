// Package proxy implements the Proxy Frontend: accepts client requests
// at /load, selects a worker via selection.Selector, forwards with
// retry across both the chosen worker and its peers, and returns the
// upstream response.
package proxy
