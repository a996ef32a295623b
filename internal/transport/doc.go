// Package transport is the single chokepoint for requests to the image
// service.
//
// Every outbound request gets the bearer credential from the session and a
// request id; every failed response is classified once, here. A rejected
// token clears the session and raises the unauthorized signal; permission,
// rate-limit, server, and connectivity failures raise api-error advisories.
// Classification never swallows the failure: the caller always receives the
// error too, so local handling and the global signal consumers stay
// independent.
package transport
