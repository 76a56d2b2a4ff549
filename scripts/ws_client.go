// Package main uploads an instance, starts an async solve and prints the
// run events received over the websocket until the run completes.
//
//	go run ./scripts instance.txt
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: ws_client <instance file>")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	var inst struct {
		ID string `json:"id"`
	}
	post(base+"/v1/instances", "text/plain", raw, &inst)
	log.Printf("instance %s", inst.ID)

	body, _ := json.Marshal(map[string]any{"instanceId": inst.ID, "async": true, "timeBudgetMs": 10000})
	var run struct {
		ID string `json:"id"`
	}
	post(base+"/v1/solve", "application/json", body, &run)
	log.Printf("run %s queued", run.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + run.ID + "/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		var evt event
		if err := conn.ReadJSON(&evt); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Fatal(err)
		}
		log.Printf("%-14s %v", evt.Type, evt.Data)
		if evt.Type == "run.completed" {
			return
		}
	}
}

func post(u, contentType string, body []byte, out any) {
	req, _ := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "planner")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		var p map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&p)
		log.Fatalf("POST %s: %d %v", u, resp.StatusCode, p)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatal(err)
	}
}
