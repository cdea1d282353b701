// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package catalog

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// newTransport returns the default transport, or one authenticating every request with a token
// obtained through the client credentials flow when a client id and secret are set.
func newTransport(ctx context.Context, tokenURL, clientID, clientSecret string) http.RoundTripper {
	if len(clientID) == 0 || len(clientSecret) == 0 {
		return http.DefaultTransport
	}

	config := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	return &oauth2.Transport{
		Source: config.TokenSource(ctx),
	}
}
