package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	baseURL  string
	clients  map[string]string // user email -> session token
	messages int
	interval time.Duration
	wait     time.Duration
}

type result struct {
	posted  atomic.Int64
	failed  atomic.Int64
	replies atomic.Int64
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cmd := &cobra.Command{
		Use:          "loadtest",
		Short:        "Post messages as several users and count pushed bot replies",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.clients) == 0 {
				return fmt.Errorf("at least one --client email=token is required")
			}
			res := run(opts, log)
			log.Info().
				Int64("posted", res.posted.Load()).
				Int64("failed", res.failed.Load()).
				Int64("replies", res.replies.Load()).
				Msg("load test complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://localhost:1000", "chat API base URL")
	cmd.Flags().StringToStringVar(&opts.clients, "client", nil, "user email and session token, as email=token (repeatable)")
	cmd.Flags().IntVar(&opts.messages, "messages", 20, "messages per client")
	cmd.Flags().DurationVar(&opts.interval, "interval", 10*time.Millisecond, "pause between posts")
	cmd.Flags().DurationVar(&opts.wait, "wait", 30*time.Second, "how long to keep listening for replies after the last post")
	return cmd
}

func run(opts *options, log zerolog.Logger) *result {
	res := &result{}
	var wg sync.WaitGroup
	for user, token := range opts.clients {
		wg.Add(1)
		go func(user, token string) {
			defer wg.Done()
			runClient(opts, log, res, user, token)
		}(user, token)
	}
	wg.Wait()
	return res
}

func runClient(opts *options, log zerolog.Logger, res *result, user, token string) {
	wsURL := "ws" + strings.TrimPrefix(opts.baseURL, "http") + "/initialize/" + url.PathEscape(user)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Error().Err(err).Str("actor", user).Msg("websocket connect failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			res.replies.Add(1)
		}
	}()

	for i := 0; i < opts.messages; i++ {
		if err := post(opts.baseURL, token, fmt.Sprintf("LoadTest Msg %d from %s", i, user)); err != nil {
			res.failed.Add(1)
			log.Warn().Err(err).Str("actor", user).Int("n", i).Msg("post failed")
		} else {
			res.posted.Add(1)
		}
		time.Sleep(opts.interval)
	}
	log.Info().Str("actor", user).Int("messages", opts.messages).Msg("finished sending")

	conn.SetReadDeadline(time.Now().Add(opts.wait))
	<-done
}

func post(baseURL, token, message string) error {
	body, _ := json.Marshal(map[string]string{"message": message})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/Chat/PostMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		Status  string  `json:"Status"`
		Message *string `json:"Message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if env.Status != "OK" {
		msg := ""
		if env.Message != nil {
			msg = *env.Message
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
