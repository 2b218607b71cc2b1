package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DannyRuijters/webrtc-friends/internal/signaling"
)

var flagServerURL string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Show the rooms and peers of a running relay",
	Long: `Fetch the room report from a running relay and render it as a table.

Examples:
  signaling-server rooms
  signaling-server rooms --server http://relay.example.com:8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRooms()
	},
}

func init() {
	roomsCmd.Flags().StringVarP(&flagServerURL, "server", "s", "http://localhost:8080", "base URL of the relay")
	rootCmd.AddCommand(roomsCmd)
}

func runRooms() error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(flagServerURL + "/api/rooms")
	if err != nil {
		return fmt.Errorf("fetch room report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch room report: unexpected status %s", resp.Status)
	}

	var report signaling.RoomsReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decode room report: %w", err)
	}

	names := make([]string, 0, len(report.Rooms))
	for name := range report.Rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Room", "Peer ID", "Name", "IP"})
	for _, name := range names {
		room := report.Rooms[name]
		for _, peer := range room.Peers {
			t.AppendRow(table.Row{name, peer.ID, peer.Name, peer.IP})
		}
		t.AppendSeparator()
	}
	t.Render()

	fmt.Printf("%d client(s) across %d room(s)\n", report.TotalClients, report.TotalRooms)
	return nil
}
