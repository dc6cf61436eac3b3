package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/gemini-relay/internal/protocol"
)

type options struct {
	baseURL        string
	conversationID string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	reset          bool
	verbose        bool
}

type wsEnvelope struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Text    string `json:"text,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type turnResult struct {
	latency time.Duration
	text    string
}

var defaultUtterances = []string{
	"Reply in three words: latency bottleneck?",
	"Reply in three words: next optimization?",
	"Reply in three words: architecture summary?",
	"Reply in three words: top risk?",
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "perfrelay: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		cfg      options
		textsRaw string
	)
	cmd := &cobra.Command{
		Use:           "perfrelay",
		Short:         "Replay text turns over the relay websocket and report reply latency",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.normalize(textsRaw); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "relay base URL")
	f.StringVar(&cfg.conversationID, "conversation-id", "", "conversation id (default: random perf-<uuid>)")
	f.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	f.DurationVar(&cfg.interTurnDelay, "inter-turn", 180*time.Millisecond, "delay between turns")
	f.DurationVar(&cfg.turnTimeout, "turn-timeout", 70*time.Second, "timeout waiting for each assistant_reply")
	f.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	f.BoolVar(&cfg.reset, "reset", true, "clear the conversation history before and after the replay")
	f.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	return cmd
}

func (o *options) normalize(textsRaw string) error {
	o.baseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if o.baseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if o.turns <= 0 {
		return fmt.Errorf("turns must be > 0")
	}
	if o.interTurnDelay < 0 {
		o.interTurnDelay = 0
	}
	if o.turnTimeout < time.Second {
		o.turnTimeout = time.Second
	}
	if strings.TrimSpace(o.conversationID) == "" {
		o.conversationID = "perf-" + uuid.NewString()
	}

	o.texts = nil
	if strings.TrimSpace(textsRaw) == "" {
		o.texts = append([]string(nil), defaultUtterances...)
		return nil
	}
	for _, part := range strings.Split(textsRaw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			o.texts = append(o.texts, t)
		}
	}
	if len(o.texts) == 0 {
		return fmt.Errorf("texts produced no non-empty utterances")
	}
	return nil
}

func run(ctx context.Context, cfg options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	if cfg.reset {
		if err := resetHistory(ctx, httpClient, cfg.baseURL, cfg.conversationID); err != nil {
			return fmt.Errorf("reset history: %w", err)
		}
		if err := sendDelete(ctx, httpClient, cfg.baseURL+"/v1/perf/latency"); err != nil {
			return fmt.Errorf("reset latency window: %w", err)
		}
		defer func() {
			_ = resetHistory(context.Background(), httpClient, cfg.baseURL, cfg.conversationID)
		}()
	}

	wsURL, err := wsURLForConversation(cfg.baseURL, cfg.conversationID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.verbose {
		fmt.Fprintf(out, "perfrelay: conversation=%s turns=%d\n", cfg.conversationID, cfg.turns)
	}

	replyCh := make(chan wsEnvelope, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, replyCh, readErrCh, out, cfg.verbose)

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		msgID := fmt.Sprintf("turn-%d", i+1)

		started := time.Now()
		if err := conn.WriteJSON(protocol.UserMessage{Type: protocol.TypeUserMessage, Text: text, ClientMsgID: msgID}); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		reply, err := awaitReply(replyCh, readErrCh, msgID, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await assistant_reply: %w", i+1, err)
		}
		res := turnResult{latency: time.Since(started), text: reply.Text}
		results = append(results, res)
		if cfg.verbose {
			fmt.Fprintf(out, "perfrelay: turn %d/%d %dms text=%q reply=%q\n", i+1, cfg.turns, res.latency.Milliseconds(), text, truncate(res.text, 80))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	printSummary(out, results)
	return nil
}

func resetHistory(ctx context.Context, client *http.Client, baseURL, conversationID string) error {
	return sendDelete(ctx, client, baseURL+"/v1/conversations/"+url.PathEscape(conversationID)+"/history")
}

func sendDelete(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	if res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("HTTP %d", res.StatusCode)
	}
	return nil
}

func wsURLForConversation(baseURL, conversationID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/conversations/ws"
	q := u.Query()
	q.Set("conversation_id", conversationID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, replyCh chan<- wsEnvelope, readErrCh chan<- error, out io.Writer, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeAssistantReply):
			replyCh <- env
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(out, "perfrelay: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func awaitReply(replyCh <-chan wsEnvelope, readErrCh <-chan error, msgID string, timeout time.Duration) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-replyCh:
			if env.ReplyTo == msgID {
				return env, nil
			}
		case err := <-readErrCh:
			return wsEnvelope{}, err
		case <-timer.C:
			return wsEnvelope{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func printSummary(out io.Writer, results []turnResult) {
	if len(results) == 0 {
		return
	}
	ms := make([]float64, 0, len(results))
	for _, r := range results {
		ms = append(ms, float64(r.latency.Microseconds())/1000)
	}
	sort.Float64s(ms)
	fmt.Fprintf(out, "perfrelay: turns=%d p50=%.1fms p95=%.1fms max=%.1fms\n",
		len(ms), percentile(ms, 0.50), percentile(ms, 0.95), ms[len(ms)-1])
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
