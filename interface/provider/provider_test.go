package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/lterlife/acolite-ingester/interface/catalog/copernicus"
)

func newIdentityServer(t *testing.T, grants *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		grant := r.PostForm.Get("grant_type")
		*grants = append(*grants, grant)
		if r.PostForm.Get("client_id") != "cdse-public" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		switch grant {
		case "password":
			if r.PostForm.Get("password") != "secret" {
				http.Error(w, `{"error":"invalid_grant","error_description":"Invalid user credentials"}`, http.StatusUnauthorized)
				return
			}
		case "refresh_token":
			if r.PostForm.Get("refresh_token") == "" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
		default:
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":       fmt.Sprintf("access-%d", len(*grants)),
			"refresh_token":      "refresh-1",
			"expires_in":         600,
			"refresh_expires_in": 3600,
		})
	}))
}

func TestAuthenticate(t *testing.T) {
	var grants []string
	server := newIdentityServer(t, &grants)
	defer server.Close()

	auth := NewAuthenticator("user", "secret")
	auth.AuthURL = server.URL

	token, err := auth.Authenticate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token.AccessToken != "access-1" || token.RefreshToken != "refresh-1" {
		t.Errorf("unexpected token: %+v", token)
	}
	if token.Expired() {
		t.Errorf("fresh token reported expired")
	}

	refreshed, err := auth.Refresh(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.AccessToken != "access-2" {
		t.Errorf("unexpected refreshed token: %+v", refreshed)
	}
	if len(grants) != 2 || grants[0] != "password" || grants[1] != "refresh_token" {
		t.Errorf("unexpected grants: %v", grants)
	}
}

func TestAuthenticateBadCredentials(t *testing.T) {
	var grants []string
	server := newIdentityServer(t, &grants)
	defer server.Close()

	auth := NewAuthenticator("user", "wrong")
	auth.AuthURL = server.URL
	if _, err := auth.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "Invalid user credentials") {
		t.Errorf("error should carry the server body: %v", err)
	}
}

func TestEnsureValid(t *testing.T) {
	var grants []string
	server := newIdentityServer(t, &grants)
	defer server.Close()

	auth := NewAuthenticator("user", "secret")
	auth.AuthURL = server.URL

	token, err := auth.EnsureValid(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	same, err := auth.EnsureValid(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if same != token {
		t.Errorf("valid token should be returned unchanged")
	}

	token.IssuedAt = time.Now().Add(-time.Hour)
	refreshed, err := auth.EnsureValid(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed == token {
		t.Errorf("expired token should be refreshed")
	}
	if len(grants) != 2 {
		t.Errorf("expected password + refresh grants, got %v", grants)
	}
}

func TestSaveLoadToken(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, ".copernicus_token.json")
	token := &Token{AccessToken: "a", RefreshToken: "r", ExpiresIn: 600, IssuedAt: time.Now()}
	if err := SaveToken(file, token); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadToken(file)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AccessToken != "a" || loaded.RefreshToken != "r" {
		t.Errorf("unexpected token: %+v", loaded)
	}
}

func TestDownloadAllSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	name := "S2A_MSIL1C_20220601T103629_N0400_R108_T31UFU_20220601T141501"
	if err := os.WriteFile(path.Join(dir, name+".zip"), []byte("zip"), 0644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected for an already downloaded tile")
	}))
	defer server.Close()

	ip := NewCopernicusImageProvider(NewAuthenticator("user", "secret"))
	ip.DownloadURL = server.URL + "/Products(%s)/$value"

	resp := &copernicus.Response{Tiles: []copernicus.Tile{{Id: "1", Name: name}}}
	if err := ip.DownloadAll(context.Background(), resp, dir); err != nil {
		t.Fatal(err)
	}
}

func TestDownloadAllSeededToken(t *testing.T) {
	var grants []string
	identity := newIdentityServer(t, &grants)
	defer identity.Close()

	zipper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer persisted" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("product content"))
	}))
	defer zipper.Close()

	auth := NewAuthenticator("user", "secret")
	auth.AuthURL = identity.URL
	ip := NewCopernicusImageProvider(auth)
	ip.DownloadURL = zipper.URL + "/Products(%s)/$value"
	ip.UseToken(&Token{AccessToken: "persisted", RefreshToken: "refresh-1", ExpiresIn: 600, IssuedAt: time.Now()})

	resp := &copernicus.Response{Tiles: []copernicus.Tile{{Id: "uuid-1", Name: "S2A_MSIL1C_20220601T103629_N0400_R108_T31UFU_20220601T141501"}}}
	if err := ip.DownloadAll(context.Background(), resp, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Errorf("a valid seeded token must not trigger a grant, got %v", grants)
	}
}

func TestDownloadAllRetryOnAuthFailure(t *testing.T) {
	var grants []string
	identity := newIdentityServer(t, &grants)
	defer identity.Close()

	requests := 0
	zipper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("product content"))
	}))
	defer zipper.Close()

	auth := NewAuthenticator("user", "secret")
	auth.AuthURL = identity.URL
	ip := NewCopernicusImageProvider(auth)
	ip.DownloadURL = zipper.URL + "/Products(%s)/$value"

	dir := t.TempDir()
	name := "S2B_MSIL1C_20220606T103629_N0400_R108_T31UFV_20220606T124853"
	resp := &copernicus.Response{Tiles: []copernicus.Tile{{Id: "uuid-1", Name: name}}}
	if err := ip.DownloadAll(context.Background(), resp, dir); err != nil {
		t.Fatal(err)
	}
	if requests != 2 {
		t.Errorf("expected one failure and one retry, got %d requests", requests)
	}
	body, err := os.ReadFile(path.Join(dir, name+".zip"))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "product content" {
		t.Errorf("unexpected content: %s", body)
	}
}

func TestDownloadAllAuthExpired(t *testing.T) {
	var grants []string
	identity := newIdentityServer(t, &grants)
	defer identity.Close()

	zipper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer zipper.Close()

	auth := NewAuthenticator("user", "secret")
	auth.AuthURL = identity.URL
	ip := NewCopernicusImageProvider(auth)
	ip.DownloadURL = zipper.URL + "/Products(%s)/$value"

	resp := &copernicus.Response{Tiles: []copernicus.Tile{{Id: "uuid-1", Name: "S2A_MSIL1C_20220601T103629_N0400_R108_T31UFU_20220601T141501"}}}
	err := ip.DownloadAll(context.Background(), resp, t.TempDir())
	var expired ErrAuthExpired
	if !errors.As(err, &expired) {
		t.Errorf("expected ErrAuthExpired, got %v", err)
	}
}
