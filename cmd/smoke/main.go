package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// smoke exercises a running API: health, login, and a tag round trip that
// must leave the tag count unchanged.
func main() {
	base := os.Getenv("AHC_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	username, password := os.Getenv("FIRST_SUPERUSER"), os.Getenv("FIRST_SUPERUSER_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("FIRST_SUPERUSER and FIRST_SUPERUSER_PASSWORD are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	if err := c.call(ctx, http.MethodGet, "/healthz", nil, http.StatusOK, nil); err != nil {
		log.Fatalf("healthz: %v", err)
	}

	var login struct {
		AccessToken string `json:"access_token"`
	}
	creds := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/login", creds, http.StatusOK, &login); err != nil {
		log.Fatalf("login: %v", err)
	}
	c.token = login.AccessToken

	before, err := c.tagCount(ctx)
	if err != nil {
		log.Fatalf("count tags: %v", err)
	}

	var tag struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
	}
	name := "smoke-" + uuid.NewString()[:8]
	if err := c.call(ctx, http.MethodPost, "/api/v1/tags/", map[string]string{"name": name}, http.StatusCreated, &tag); err != nil {
		log.Fatalf("create tag: %v", err)
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/tags/"+tag.ID.String(), nil, http.StatusOK, nil); err != nil {
		log.Fatalf("get tag: %v", err)
	}
	if err := c.call(ctx, http.MethodDelete, "/api/v1/tags/"+tag.ID.String(), nil, http.StatusNoContent, nil); err != nil {
		log.Fatalf("delete tag: %v", err)
	}

	after, err := c.tagCount(ctx)
	if err != nil {
		log.Fatalf("count tags: %v", err)
	}
	if before != after {
		log.Fatalf("tag count changed: %d before, %d after", before, after)
	}
	fmt.Printf("smoke OK: tag %s created and removed, %d tags\n", name, after)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) tagCount(ctx context.Context) (int64, error) {
	var page struct {
		Total int64 `json:"total"`
	}
	err := c.call(ctx, http.MethodGet, "/api/v1/tags/?limit=1", nil, http.StatusOK, &page)
	return page.Total, err
}

func (c *client) call(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
