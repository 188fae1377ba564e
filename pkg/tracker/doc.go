// Package tracker persists deployment status changes and notifies the
// deployment's owner. A record that reached InService or Failed is never
// moved again, so the owner sees one terminal notification.
package tracker
