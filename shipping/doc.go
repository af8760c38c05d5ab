// Package shipping is a small client for the Shiprocket seller API: seller
// login, shipment tracking, order details and courier serviceability.
//
// Every call takes the seller token explicitly and forwards it unchanged as a
// bearer token. The token is never logged and never used as a cache key; when
// a cache is configured, GET responses are stored under a namespace derived
// from the token's SHA-256 digest.
package shipping
