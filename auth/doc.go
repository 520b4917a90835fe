// Package auth provides the request interceptors that gate the HTTP binding.
//
// An Interceptor runs before the transport reads a message from the request.
// Rejections are errors marked with ErrUnauthorized; the transport maps them
// to 401 and never invokes the dispatcher.
//
// Two interceptors are provided:
//
//	auth.StaticSecret("Authorization", secret) // shared secret, constant-time compare
//	auth.JWT("Authorization", secret)          // HS256 token signed with secret
//
// Both accept the credential bare or as "Bearer <credential>". Error messages
// describe why a credential was rejected and never echo the credential or the
// configured secret.
package auth
