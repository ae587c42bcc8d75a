package oauth

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseJSONParams(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    url.Values
		wantErr bool
	}{
		{
			name: "strings",
			body: `{"grant_type":"authorization_code","code":"abc"}`,
			want: url.Values{"grant_type": {"authorization_code"}, "code": {"abc"}},
		},
		{
			name: "scalars are stringified",
			body: `{"ttl":3600,"offline":true,"missing":null}`,
			want: url.Values{"ttl": {"3600"}, "offline": {"true"}, "missing": {""}},
		},
		{name: "nested object", body: `{"code":{"a":1}}`, wantErr: true},
		{name: "array", body: `{"scope":["a","b"]}`, wantErr: true},
		{name: "not an object", body: `["grant_type"]`, wantErr: true},
		{name: "truncated", body: `{"code":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJSONParams(strings.NewReader(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseJSONParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Encode() != tt.want.Encode() {
				t.Errorf("parseJSONParams() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientCredentials(t *testing.T) {
	params := url.Values{"client_id": {"form-id"}, "client_secret": {"form-secret"}}

	r := httptest.NewRequest("POST", "/oauth/token", nil)
	id, secret, err := clientCredentials(r, params)
	if err != nil || id != "form-id" || secret != "form-secret" {
		t.Errorf("form credentials = (%q, %q, %v), want (form-id, form-secret, nil)", id, secret, err)
	}

	r = httptest.NewRequest("POST", "/oauth/token", nil)
	r.SetBasicAuth(url.QueryEscape("basic id"), url.QueryEscape("s3cr3t/+="))
	id, secret, err = clientCredentials(r, params)
	if err != nil {
		t.Fatalf("clientCredentials() error = %v", err)
	}
	if id != "basic id" || secret != "s3cr3t/+=" {
		t.Errorf("basic credentials = (%q, %q), want (basic id, s3cr3t/+=)", id, secret)
	}

	r = httptest.NewRequest("POST", "/oauth/token", nil)
	r.SetBasicAuth("bad%zz", "secret")
	if _, _, err := clientCredentials(r, params); err == nil {
		t.Error("clientCredentials() should reject a malformed escape sequence")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		wantOK bool
	}{
		{header: "Bearer abc.def", want: "abc.def", wantOK: true},
		{header: "bearer abc", want: "abc", wantOK: true},
		{header: "BEARER   padded  ", want: "padded", wantOK: true},
		{header: "Bearer ", wantOK: false},
		{header: "Bearer", wantOK: false},
		{header: "Basic Zm9vOmJhcg==", wantOK: false},
		{header: "", wantOK: false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("POST", "/oauth/verify-mobile", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(r)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLooseString(t *testing.T) {
	var req VerifyMobileRequest
	if err := json.Unmarshal([]byte(`{"phoneNumber":"1 1234567890","region":1}`), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.PhoneNumber != "1 1234567890" {
		t.Errorf("PhoneNumber = %q, want %q", req.PhoneNumber, "1 1234567890")
	}
	if req.Region != "1" {
		t.Errorf("Region = %q, want %q", req.Region, "1")
	}

	if err := json.Unmarshal([]byte(`{"phoneNumber":{"n":1},"region":"1"}`), &req); err == nil {
		t.Error("Unmarshal() should reject an object phoneNumber")
	}
}
