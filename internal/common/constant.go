package common

// AuthorizationHeaderName carries bearer credentials (session tokens and the
// admin key) on inbound HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is the scheme prefix expected in AuthorizationHeaderName.
const BearerPrefix = "Bearer "
