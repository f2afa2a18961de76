package common

// AccessTokenHeaderName is the gRPC metadata key carrying the relay access token.
const AccessTokenHeaderName = "access_token"
