package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomrelay/internal/wsclient"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	joinURL  string
	joinRoom string
	joinPeer string
	joinName string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room from the terminal",
	Long: `Join a room and print everything the relay pushes.
Lines typed on stdin are sent as chat; /hand, /bg, /share, /unshare and
/record send the matching toggle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if joinPeer == "" {
			joinPeer = uuid.NewString()
		}
		return join(cmd.Context())
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinURL, "url", "ws://localhost:8085/ws", "relay websocket endpoint")
	joinCmd.Flags().StringVar(&joinRoom, "room", "lobby", "room to join")
	joinCmd.Flags().StringVar(&joinPeer, "peer", "", "peer id (random when empty)")
	joinCmd.Flags().StringVar(&joinName, "name", "", "display name")
	_ = joinCmd.MarkFlagRequired("name")
}

func join(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := wsclient.Dial(dialCtx, joinURL, nil)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := client.Call("JoinRoom", map[string]string{
		"room":        joinRoom,
		"peerId":      joinPeer,
		"displayName": joinName,
	})
	if err != nil {
		return err
	}
	ackCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	ack, err := client.Await(ackCtx, id, printFrame)
	cancel()
	if err != nil {
		return fmt.Errorf("join %s: %w", joinRoom, err)
	}
	printFrame(ack)
	zap.L().Debug("join.accepted", zap.String("room", joinRoom), zap.String("peer_id", joinPeer))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-client.Incoming():
			if !ok {
				return fmt.Errorf("connection closed by relay")
			}
			printFrame(f)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			event, body, ok := wsclient.ParseInput(line)
			if !ok {
				fmt.Println("? unknown command")
				continue
			}
			if _, err := client.Call(event, body); err != nil {
				return err
			}
		}
	}
}

func printFrame(f wsclient.Frame) {
	if s := wsclient.Describe(f); s != "" {
		fmt.Println(s)
	}
}
