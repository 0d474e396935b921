package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	// Get port from command line or use default
	port := "8081"
	if len(os.Args) > 1 {
		port = os.Args[1]
	}

	// Health check endpoint
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","port":%s}`, port)
	})

	// Main endpoint
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Log the request with the virtual host it was routed for
		log.Printf("[Port %s] %s %s host=%s", port, r.Method, r.RequestURI, r.Host)

		switch r.URL.Path {
		case "/":
			// Echo the routing context so proxy behavior is visible:
			// the Host the client asked for and the forwarding headers
			// stamped by the proxy
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"backend":"test-server","port":%s,"host":"%s","forwarded_for":"%s","forwarded_proto":"%s","request_id":"%s"}`,
				port, r.Host,
				r.Header.Get("X-Forwarded-For"),
				r.Header.Get("X-Forwarded-Proto"),
				r.Header.Get("X-Request-ID"))

		case "/api/test":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"message":"test response","port":%s}`, port)

		case "/delay":
			// Simulate slow endpoint
			delay := time.Duration(100) * time.Millisecond
			time.Sleep(delay)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"ok","delay_ms":100}`)

		case "/error":
			// Return error
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, `{"error":"simulated error"}`)

		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"path":"%s","port":%s}`, r.URL.Path, port)
		}
	})

	// Start server
	addr := fmt.Sprintf(":%s", port)
	log.Printf("Test server listening on port %s", port)
	log.Fatal(http.ListenAndServe(addr, nil))
}
