// Package transport glues circuit breaking into an HTTP client stack as an
// http.RoundTripper decorator. Per call it resolves the breaker for the
// request's key, asks it for permission, issues the call through the
// wrapped round tripper and feeds the classified outcome back.
//
// Install it on any http.Client:
//
//	client := &http.Client{
//	    Transport: transport.New(nil, mapping, outcome.Default(), logger),
//	}
package transport
