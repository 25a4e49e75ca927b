package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func agentCmd(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	id := fs.Int64("id", 0, "container id (required)")
	action := fs.String("do", "", "collect|forward toggles a flow; empty prints status")
	_ = fs.Parse(args)

	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}
	u := fmt.Sprintf("%s/v1/agents/%d", strings.TrimRight(strings.TrimSpace(*baseURL), "/"), *id)
	method := http.MethodGet
	switch *action {
	case "":
	case "collect", "forward":
		method = http.MethodPost
		u += "/" + *action
	default:
		fmt.Fprintln(os.Stderr, "unknown -do:", *action)
		os.Exit(2)
	}
	call(method, u)
}

func containersCmd(args []string) {
	fs := flag.NewFlagSet("containers", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	x := fs.Float64("x", 0, "observer x")
	y := fs.Float64("y", 0, "observer y")
	z := fs.Float64("z", 0, "observer z")
	yaw := fs.Float64("yaw", 0, "observer yaw in degrees")
	golden := fs.Bool("golden", false, "golden containers only")
	_ = fs.Parse(args)

	q := url.Values{}
	q.Set("x", fmt.Sprint(*x))
	q.Set("y", fmt.Sprint(*y))
	q.Set("z", fmt.Sprint(*z))
	q.Set("yaw", fmt.Sprint(*yaw))
	if *golden {
		q.Set("golden", "true")
	}
	q.Set("format", "text")
	call(http.MethodGet, strings.TrimRight(strings.TrimSpace(*baseURL), "/")+"/v1/containers?"+q.Encode())
}

func call(method, u string) {
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimRight(string(b), "\n"))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
