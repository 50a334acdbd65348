// Command dashboard renders a live terminal view of the intake server:
// request statistics, recent requests and active sessions, refreshed on a
// fixed interval.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dashboard",
		Usage: "Terminal dashboard for the intake server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Aliases: []string{"a"},
				Usage:   "Base URL of the intake server",
				Value:   "http://localhost:8080",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Refresh interval",
				Value:   5 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Render a single snapshot and exit",
			},
		},
		Action: runDashboard,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runDashboard(c *cli.Context) error {
	client := &apiClient{
		base: strings.TrimRight(c.String("api"), "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}

	if c.Bool("once") {
		return render(client)
	}

	ticker := time.NewTicker(c.Duration("interval"))
	defer ticker.Stop()

	for {
		if err := render(client); err != nil {
			fmt.Fprintln(os.Stderr, "refresh failed:", err)
		}
		select {
		case <-ticker.C:
		case <-c.Context.Done():
			return nil
		}
	}
}

type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type statsView struct {
	TotalRequests       int `json:"total_requests"`
	PendingRequests     int `json:"pending_requests"`
	InProgressRequests  int `json:"in_progress_requests"`
	CompletedRequests   int `json:"completed_requests"`
	RejectedRequests    int `json:"rejected_requests"`
	CancelledRequests   int `json:"cancelled_requests"`
	RecentRequestsWeek  int `json:"recent_requests_week"`
	ServiceDistribution []struct {
		ServiceName string `json:"service_name"`
		Count       int    `json:"count"`
	} `json:"service_distribution"`
}

type requestView struct {
	RequestID   string `json:"request_id"`
	ServiceName string `json:"service_name"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type requestListView struct {
	Requests []requestView `json:"requests"`
	Total    int           `json:"total"`
}

type sessionView struct {
	State       string `json:"state"`
	ServiceInfo *struct {
		ServiceName string `json:"service_name"`
	} `json:"service_info"`
	CollectedFields     int  `json:"collected_fields"`
	TotalRequiredFields int  `json:"total_required_fields"`
	MessageCount        int  `json:"message_count"`
	Abandoned           bool `json:"abandoned"`
}

type sessionListView struct {
	ActiveSessions int                    `json:"active_sessions"`
	Sessions       map[string]sessionView `json:"sessions"`
}

func render(client *apiClient) error {
	var stats statsView
	if err := client.getJSON("/stats", &stats); err != nil {
		return err
	}
	var recent requestListView
	if err := client.getJSON("/requests?limit=10", &recent); err != nil {
		return err
	}
	var sessions sessionListView
	if err := client.getJSON("/sessions", &sessions); err != nil {
		return err
	}

	// clear screen and home the cursor before repainting
	fmt.Print("\033[2J\033[H")

	fmt.Printf("Intake Dashboard  %s  (%s)\n", time.Now().Format("15:04:05"), client.base)
	fmt.Println(strings.Repeat("=", 72))

	fmt.Printf("\nRequests: %d total, %d in the last 7 days\n", stats.TotalRequests, stats.RecentRequestsWeek)
	fmt.Printf("  %-12s %d\n", "pending", stats.PendingRequests)
	fmt.Printf("  %-12s %d\n", "in_progress", stats.InProgressRequests)
	fmt.Printf("  %-12s %d\n", "completed", stats.CompletedRequests)
	fmt.Printf("  %-12s %d\n", "rejected", stats.RejectedRequests)
	fmt.Printf("  %-12s %d\n", "cancelled", stats.CancelledRequests)

	if len(stats.ServiceDistribution) > 0 {
		fmt.Println("\nTop services:")
		for _, s := range stats.ServiceDistribution {
			fmt.Printf("  %-40s %d\n", truncate(s.ServiceName, 40), s.Count)
		}
	}

	fmt.Printf("\nRecent requests (%d total):\n", recent.Total)
	fmt.Printf("  %-38s %-28s %-12s %s\n", "ID", "SERVICE", "STATUS", "CREATED")
	for _, r := range recent.Requests {
		fmt.Printf("  %-38s %-28s %-12s %s\n",
			r.RequestID, truncate(r.ServiceName, 28), r.Status, shortTime(r.CreatedAt))
	}

	fmt.Printf("\nActive sessions: %d\n", sessions.ActiveSessions)
	for id, s := range sessions.Sessions {
		service := "-"
		if s.ServiceInfo != nil && s.ServiceInfo.ServiceName != "" {
			service = s.ServiceInfo.ServiceName
		}
		state := s.State
		if s.Abandoned {
			state = "abandoned"
		}
		fmt.Printf("  %-38s %-16s %-28s %d/%d fields (%d msgs)\n",
			id, state, truncate(service, 28), s.CollectedFields, s.TotalRequiredFields, s.MessageCount)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func shortTime(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format("Jan 02 15:04")
}
