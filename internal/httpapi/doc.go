// Package httpapi exposes the notification feed over local HTTP for a UI
// shell and operator tooling. Routes are served by chi; GET
// /notifications/stream pushes feed events as server-sent events.
package httpapi
