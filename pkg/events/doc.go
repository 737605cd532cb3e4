/*
Package events provides an in-memory event broker for gateway notifications.

It implements a lightweight, topic-agnostic pub/sub bus: the administrative
API publishes a message whenever an endpoint, zone, or route is created or
removed, and the data plane publishes when a tunnel opens or closes or a DNS
query is refused. Subscribers receive every event on a buffered channel;
there is no filtering by type, so consumers that only care about a subset
switch on Event.Type themselves.

Delivery is best-effort. Publish never blocks past the broker's own queue,
and broadcast drops an event for a subscriber whose channel is full rather
than stall the whole broker waiting on a slow reader.
*/
package events
