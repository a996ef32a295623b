// Package imageapi is the typed client for the image generation service.
//
// It covers the auth endpoints, asynchronous task submission (text-to-image,
// image edit, batch edit), status and cancellation, result download, quota,
// queue load, history, and statistics. All requests flow through the shared
// transport, which owns credential attachment and failure classification;
// this package only shapes requests and decodes responses.
package imageapi
