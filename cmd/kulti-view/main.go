package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kulti/stream/internal/tui/app"
	"github.com/kulti/stream/internal/tui/client"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the Kulti relay")
	agent := flag.String("agent", "nex", "Agent to watch")
	name := flag.String("name", "", "Display name for chat and reactions")
	flag.Parse()

	ws := client.NewWSClient(*wsURL, *agent, *name)
	httpClient := client.NewHTTPClient(deriveHTTPBase(*wsURL))

	p := tea.NewProgram(app.New(ws, httpClient, *name), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") || u.Scheme == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
