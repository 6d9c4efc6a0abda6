package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

const defaultServerURL = "http://localhost:8080"

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// stateView is the part of the service snapshot the watcher prints
type stateView struct {
	Selection assistant.Selection `json:"selection"`
	Loading   bool                `json:"isLoading"`
	Error     string              `json:"error"`
	Job       assistant.Job       `json:"job"`
	Answer    *assistant.Answer   `json:"answer"`
}

func newWatchCmd() *cobra.Command {
	var server, token string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the assistant session of a running console-assistant service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("ASSISTANT_TOKEN")
			}
			wsURL, err := websocketURL(server)
			if err != nil {
				return err
			}

			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
			}
			defer conn.Close()

			go func() {
				<-cmd.Context().Done()
				conn.Close()
			}()

			if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
				return err
			}
			return watchLoop(conn, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServerURL, "console-assistant service URL")
	cmd.Flags().StringVar(&token, "token", "", "JWT for the service (default $ASSISTANT_TOKEN)")
	return cmd
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

func watchLoop(conn *websocket.Conn, w io.Writer) error {
	var last stateView
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		switch msg.Type {
		case "authenticated":
			fmt.Fprintln(w, color.GreenString("connected"))
		case "error":
			var data map[string]string
			_ = json.Unmarshal(msg.Data, &data)
			return errors.New(data["message"])
		case "config_changed":
			fmt.Fprintln(w, color.YellowString("configuration reloaded"))
		case "state":
			var st stateView
			if err := json.Unmarshal(msg.Data, &st); err != nil {
				continue
			}
			printStateChange(w, last, st)
			last = st
		}
	}
}

func printStateChange(w io.Writer, prev, st stateView) {
	if st.Selection != prev.Selection {
		fmt.Fprintf(w, "selected %s / %s / %s\n", st.Selection.BackendID, st.Selection.ModelID, st.Selection.TaskID)
	}
	if st.Loading && (!prev.Loading || st.Job.Generation != prev.Job.Generation) {
		fmt.Fprintf(w, "%s query %d\n", color.CyanString("started"), st.Job.Generation)
	}
	if st.Loading && st.Job.Progress != prev.Job.Progress && st.Job.Progress > 0 {
		fmt.Fprintf(w, "  %3.0f%%\n", st.Job.Progress)
	}
	if st.Error != "" && st.Error != prev.Error {
		fmt.Fprintf(w, "%s %s\n", color.RedString("error"), st.Error)
	}
	if st.Answer != nil && (prev.Answer == nil || st.Answer.JobID != prev.Answer.JobID) {
		fmt.Fprintf(w, "%s job %s\n%s\n", color.GreenString("answer"), st.Answer.JobID, st.Answer.TaskOutput)
	}
}
