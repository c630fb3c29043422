// Package protocol implements the dashboard channel wire format.
//
// Inbound frames are untrusted: ParseClientMessage turns raw text into one of the three
// client messages (ping, subscribe, unsubscribe) or rejects it as a whole. Outbound frames
// are built with the New* constructors and serialized with Encode. Every server frame
// carries a millisecond timestamp and ProtocolVersion.
//
// Dashboard identifiers must pass IsValidDashboardID before they are used as a room key or
// echoed back to a client.
package protocol
