// Package chain implements the chain capability against the lending
// gateway's JSON-RPC endpoint (transfers, status polls) and its websocket
// log stream (program events).
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domain "credlend-backend/internal/domain/chain"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type Client struct {
	rpcURL string
	wsURL  string
	http   *http.Client
	log    *slog.Logger
}

func NewClient(rpcURL, wsURL string, log *slog.Logger) *Client {
	return &Client{
		rpcURL: rpcURL,
		wsURL:  wsURL,
		http:   &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return err
	}
	if rr.Error != nil {
		return rr.Error
	}
	if out != nil {
		return json.Unmarshal(rr.Result, out)
	}
	return nil
}

type transferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

func (c *Client) SubmitTransfer(ctx context.Context, t domain.Transfer) (string, error) {
	var hash string
	err := c.call(ctx, "lend_submitTransfer", transferParams{
		From:   t.From,
		To:     t.To,
		Amount: t.Amount.String(),
		Memo:   t.Memo,
	}, &hash)
	if err != nil {
		return "", err
	}
	return hash, nil
}

type statusResult struct {
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	Reason      string `json:"reason"`
}

func (c *Client) TransactionStatus(ctx context.Context, txHash string) (domain.TxStatus, error) {
	var res statusResult
	if err := c.call(ctx, "lend_getTransactionStatus", []string{txHash}, &res); err != nil {
		return domain.TxStatus{}, err
	}
	st := domain.TxStatus{BlockNumber: res.BlockNumber, Reason: res.Reason}
	switch res.Status {
	case "confirmed":
		st.State = domain.TxConfirmed
	case "failed":
		st.State = domain.TxFailed
	default:
		st.State = domain.TxPending
	}
	return st, nil
}

type subscribeParams struct {
	ProgramID string `json:"programId"`
	FromSlot  uint64 `json:"fromSlot"`
}

type logFrame struct {
	Slot      uint64   `json:"slot"`
	Signature string   `json:"signature"`
	Logs      []string `json:"logs"`
}

// SubscribeLogs dials the websocket endpoint, sends the subscription
// request, and pumps frames into the returned channel until the connection
// drops or ctx is canceled.
func (c *Client) SubscribeLogs(ctx context.Context, programID string, fromSlot uint64) (<-chan domain.LogEvent, error) {
	conn, _, err := websocket.Dial(ctx, c.wsURL, nil)
	if err != nil {
		return nil, err
	}

	sub := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "lend_logsSubscribe", Params: subscribeParams{ProgramID: programID, FromSlot: fromSlot}}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, err
	}

	out := make(chan domain.LogEvent)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			var frame logFrame
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				if ctx.Err() == nil {
					c.log.Warn("log stream read failed", "err", err)
				}
				return
			}
			select {
			case out <- domain.LogEvent{Slot: frame.Slot, Signature: frame.Signature, Logs: frame.Logs}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
