// Package aer owns Layer 1 (Events) of the star-field data model.
//
// Responsibilities: the address-event representation types, ingestion from
// event files (DAT, CSV, PCAP-captured UDP), encoders for the same formats,
// synthetic star-field generation, and the optional upstream noise filters
// (hot pixels, neighbour support, polarity).
// Key types: Event, Stream.
//
// Dependency rule: L1 depends on nothing above it. Streams handed to later
// layers are treated as immutable; every filter returns a new Stream.
package aer
