// Package deploy hands the Output Tree to wrangler for a Cloudflare Pages
// deployment.
//
// The account id and API token travel in the child environment
// (CLOUDFLARE_ACCOUNT_ID, CLOUDFLARE_API_TOKEN) and never appear on the
// command line. The combined output of the tool is captured line by line
// and returned to the caller, which prints it whatever the outcome.
package deploy
