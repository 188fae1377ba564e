/*
Package notify delivers deployment status changes to connected users over
WebSocket.

A client opens /ws and sends {"event":"register","userId":"..."}; the hub
acknowledges with a "registered" event. Each status change is then pushed
as a "deployment.status" message carrying the full record. A user has at
most one session; a newer registration replaces the older one. Messages to
users without a session are dropped.
*/
package notify
