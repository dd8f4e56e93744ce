package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const defaultURL = "http://127.0.0.1:7081"

type client struct {
	base  string
	token string
	http  *http.Client
}

// clientFlags registers the connection flags shared by every API command.
func clientFlags(fs *pflag.FlagSet) func() *client {
	url := fs.String("url", envOr("REWARDSD_URL", defaultURL), "rewardsd base URL")
	token := fs.String("token", os.Getenv("REWARDSD_TOKEN"), "bearer token")
	return func() *client {
		return &client{
			base:  strings.TrimRight(*url, "/"),
			token: *token,
			http:  &http.Client{Timeout: 30 * time.Second},
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// do sends body as JSON and returns the raw response body. Non-2xx statuses
// are returned as errors carrying the server's message.
func (c *client) do(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return data, nil
}

func printJSON(w io.Writer, data []byte) {
	if len(bytes.TrimSpace(data)) == 0 {
		fmt.Fprintln(w, "ok")
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		w.Write(data)
		return
	}
	fmt.Fprintln(w, out.String())
}

// call runs one request and prints the result, returning the exit code.
func call(c *client, method, path string, body any, stdout, stderr io.Writer) int {
	data, err := c.do(method, path, body)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, data)
	return 0
}
