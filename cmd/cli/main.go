package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

type command struct {
	method string
	path   string
	help   string
}

var commands = map[string]command{
	"check":     {http.MethodPost, "/api/check", "run a check now"},
	"outages":   {http.MethodGet, "/api/outages", "show the latest result"},
	"clear":     {http.MethodDelete, "/api/outages", "clear the stored result"},
	"settings":  {http.MethodGet, "/api/settings", "show settings"},
	"locations": {http.MethodGet, "/api/locations", "show the location catalog"},
	"test":      {http.MethodPost, "/api/notifications/test", "send a test notification"},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cli [-api URL] [-key KEY] <command>")
	for _, name := range []string{"check", "outages", "clear", "settings", "locations", "test"} {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].help)
	}
	fmt.Fprintln(os.Stderr, "  add-location PROVINCE CANTON DISTRICT [NAME]")
}

func main() {
	api := flag.String("api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	key := flag.String("key", os.Getenv("WATERWATCH_API_KEY"), "API key")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	c := &client{base: strings.TrimRight(*api, "/"), key: *key, http: &http.Client{Timeout: 30 * time.Second}}

	var err error
	if args[0] == "add-location" {
		err = c.addLocation(args[1:])
	} else if cmd, ok := commands[args[0]]; ok {
		err = c.call(cmd.method, cmd.path, nil, os.Stdout)
	} else {
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) call(method, path string, body any, out io.Writer) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API returned %s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	_, err = fmt.Fprintln(out, string(raw))
	return err
}

type location struct {
	ProvinceID string `json:"provinceId"`
	CantonID   string `json:"cantonId"`
	DistrictID string `json:"districtId"`
	Name       string `json:"name,omitempty"`
}

// addLocation appends one location to the current settings.
func (c *client) addLocation(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("add-location needs PROVINCE CANTON DISTRICT [NAME]")
	}
	loc := location{ProvinceID: args[0], CantonID: args[1], DistrictID: args[2]}
	if len(args) > 3 {
		loc.Name = strings.Join(args[3:], " ")
	}

	var buf bytes.Buffer
	if err := c.call(http.MethodGet, "/api/settings", nil, &buf); err != nil {
		return err
	}
	var current struct {
		MonitoredLocations []location `json:"monitoredLocations"`
	}
	if err := json.Unmarshal(buf.Bytes(), &current); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	locs := append(current.MonitoredLocations, loc)
	return c.call(http.MethodPut, "/api/settings", map[string]any{"monitoredLocations": locs}, os.Stdout)
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
