package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dkeye/meetsignal/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	rowStyle    = lipgloss.NewStyle().Padding(0, 1)
	altRowStyle = rowStyle.Foreground(lipgloss.Color("245"))
)

func newMeetingsCmd() *cobra.Command {
	var (
		server string
		token  string
	)
	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "List live meetings on a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("VOICE_ADMIN_TOKEN")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			rooms, err := fetchMeetings(ctx, http.DefaultClient, server, token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), meetingsView(rooms))
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "http://localhost:8080", "server base url")
	cmd.Flags().StringVarP(&token, "token", "t", "", "admin token (default $VOICE_ADMIN_TOKEN)")
	return cmd
}

func fetchMeetings(ctx context.Context, client *http.Client, server, token string) ([]domain.RoomInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/meetings", nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: %s", server, resp.Status)
	}
	var body struct {
		Meetings []domain.RoomInfo `json:"meetings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode meetings: %w", err)
	}
	return body.Meetings, nil
}

func meetingsView(rooms []domain.RoomInfo) string {
	if len(rooms) == 0 {
		return "no live meetings"
	}
	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{string(r.MeetingID), string(r.HostID), strconv.Itoa(r.Participants)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Meeting", "Host", "Participants").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return rowStyle
			default:
				return altRowStyle
			}
		})
	return tbl.Render()
}
