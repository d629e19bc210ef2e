// Package connection implements the remote model connection: a stateless
// request/response adapter that turns a typed request into one outbound
// HTTPS call against a model inference endpoint and parses the reply into
// a normalized response.
//
// A Connection is constructed with an endpoint, a TokenProvider supplying
// credentials, and default generation parameters. Authentication and
// transport are collaborators: the connection never parses credential
// material and never retries on its own. A retrying transport can be
// layered in explicitly with WithRetries.
//
// Connections hold no mutable state after construction; callers may issue
// Send and SendStream concurrently.
package connection
