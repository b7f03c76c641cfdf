// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// FunctionKeyHeader carries the function-level access key.
const FunctionKeyHeader = "x-functions-key"

// AuthConfig selects how requests to the backend are authenticated. OAuth
// client credentials are used when TokenURL is set; a function key is added
// to every request when FunctionKey is set. Both may be combined.
type AuthConfig struct {
	FunctionKey  string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// NewHTTPClient builds the HTTP client used by Client. The function key is
// only sent to the backend, never to the token endpoint.
func NewHTTPClient(ctx context.Context, cfg AuthConfig) *http.Client {
	if cfg.TokenURL == "" {
		return &http.Client{Transport: withKey(http.DefaultTransport, cfg.FunctionKey), Timeout: cfg.Timeout}
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	tokenClient := &http.Client{Transport: http.DefaultTransport, Timeout: cfg.Timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tokenClient)

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: creds.TokenSource(ctx),
			Base:   withKey(http.DefaultTransport, cfg.FunctionKey),
		},
		Timeout: cfg.Timeout,
	}
}

func withKey(next http.RoundTripper, key string) http.RoundTripper {
	if key == "" {
		return next
	}
	return &keyTransport{key: key, next: next}
}

type keyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(FunctionKeyHeader, t.key)
	return t.next.RoundTrip(r)
}
