// Package tor routes relay directory requests through the Tor network.
//
// Fetching the consensus view from a clearnet service reveals which
// investigator workstation asked for it and when. Routing the request through
// Tor keeps that out of the directory operator's access logs.
//
// Two ways to reach Tor are supported:
//   - an external SOCKS5 proxy such as a system tor daemon (Client)
//   - an embedded daemon started through tornago (EmbeddedTor)
//
// Connect picks one of the two, or a direct connection, from Options and
// returns a Session that owns whatever it started.
package tor
