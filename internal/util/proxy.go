package util

import (
	"net/http"
	"net/url"
)

// NewProxyFunc builds the proxy selector shared by the provider clients and
// the citation checker. Explicitly configured proxy URLs win per scheme;
// with none set the standard HTTP_PROXY family of environment variables
// applies.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		// Neither explicit URL covers this scheme
		return http.ProxyFromEnvironment(req)
	}
}
