// Package server assembles the HTTP surface: a Fiber application with
// request-ID and panic-recovery middleware, the catalog REST routes and
// the media endpoints that stream files out of the fetch-through cache.
package server
