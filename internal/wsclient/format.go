package wsclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// commands maps slash commands typed in the terminal to relay calls.
var commands = map[string]string{
	"/hand":    "RaiseHand",
	"/bg":      "ToggleVirtualBackground",
	"/share":   "StartScreenShare",
	"/unshare": "StopScreenShare",
	"/record":  "ToggleRecording",
}

// ParseInput turns one line of terminal input into a call. Plain text is chat.
func ParseInput(line string) (event string, body any, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, false
	}
	if strings.HasPrefix(line, "/") {
		ev, known := commands[line]
		if !known {
			return "", nil, false
		}
		return ev, struct{}{}, true
	}
	return "BroadcastMessage", map[string]string{"text": line}, true
}

// Describe renders a frame as one human-readable line.
func Describe(f Frame) string {
	var body struct {
		PeerID      string `json:"peerId"`
		DisplayName string `json:"displayName"`
		SenderName  string `json:"senderName"`
		Text        string `json:"text"`
		Error       string `json:"error"`
		Request     string `json:"request"`
	}
	_ = json.Unmarshal(f.Body, &body)

	switch f.Event {
	case "JoinRoom-ack":
		var peers []struct {
			PeerID      string `json:"peerId"`
			DisplayName string `json:"displayName"`
		}
		_ = json.Unmarshal(f.Body, &peers)
		if len(peers) == 0 {
			return "* joined an empty room"
		}
		names := make([]string, len(peers))
		for i, p := range peers {
			names[i] = fmt.Sprintf("%s (%s)", p.DisplayName, p.PeerID)
		}
		return "* joined, already here: " + strings.Join(names, ", ")
	case "UserConnected":
		return fmt.Sprintf("* %s (%s) joined", body.DisplayName, body.PeerID)
	case "UserDisconnected":
		return fmt.Sprintf("* %s left", body.PeerID)
	case "ChatMessage":
		return fmt.Sprintf("<%s> %s", body.SenderName, body.Text)
	case "Announcement":
		return "! " + body.Text
	case "error":
		return fmt.Sprintf("! %s rejected: %s", body.Request, body.Error)
	case "UserRaisedHand", "VirtualBackgroundToggled", "ScreenShareStarted",
		"ScreenShareStopped", "RecordingToggled":
		return fmt.Sprintf("* %s: %s", body.PeerID, f.Event)
	}
	if strings.HasSuffix(f.Event, "-ack") {
		return ""
	}
	return fmt.Sprintf("? %s %s", f.Event, string(f.Body))
}
