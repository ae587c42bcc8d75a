package oauth

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// parseTokenRequest reads the parameters of a token request from a form or
// a flat JSON object. The body is capped at MaxBodyBytes.
func (h *Handler) parseTokenRequest(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return parseJSONParams(r.Body)
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.PostForm, nil
}

// parseJSONParams flattens a JSON object into url.Values. Numbers and
// booleans are stringified; nested values are rejected.
func parseJSONParams(body io.Reader) (url.Values, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	params := make(url.Values, len(raw))
	for key, value := range raw {
		s, err := scalarToString(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		params.Set(key, s)
	}
	return params, nil
}

// clientCredentials returns the client id and secret from HTTP Basic
// authentication, which takes precedence, or from the request parameters.
// Basic credentials are form-urlencoded before base64 (RFC 6749 §2.3.1).
func clientCredentials(r *http.Request, params url.Values) (clientID, clientSecret string, err error) {
	if user, pass, ok := r.BasicAuth(); ok {
		if clientID, err = url.QueryUnescape(user); err != nil {
			return "", "", fmt.Errorf("malformed client id in Authorization header: %w", err)
		}
		if clientSecret, err = url.QueryUnescape(pass); err != nil {
			return "", "", fmt.Errorf("malformed client secret in Authorization header: %w", err)
		}
		return clientID, clientSecret, nil
	}
	return params.Get("client_id"), params.Get("client_secret"), nil
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
