// Package crawler implements the crawl engine: URL canonicalization, scope
// policy, robots.txt and per-domain politeness, page and topic extraction,
// and the depth-bounded traversal that records results through a Store.
package crawler
