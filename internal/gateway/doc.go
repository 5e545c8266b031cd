// Package gateway authenticates against a Cloudflare Access protected
// origin using a service token pair (CF-Access-Client-Id and
// CF-Access-Client-Secret) and extracts the CF_Authorization session
// value that every later request must carry as a cookie.
package gateway
