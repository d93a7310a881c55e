package usage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
)

// DefaultRPCFunction is the database function the REST store calls. It must
// perform the upsert-and-increment in one statement; see FunctionSQL.
const DefaultRPCFunction = "increment_daily_counter"

// FunctionSQL creates DefaultRPCFunction in a Supabase/PostgREST project.
//
//go:embed sql/increment_daily_counter.sql
var FunctionSQL string

const restTimeout = 10 * time.Second

// RESTStore increments counters through a PostgREST (Supabase) RPC call.
type RESTStore struct {
	endpoint  string
	key       string
	function  string
	transport http.RoundTripper
}

// NewRESTStore creates a store for the project at baseURL. A nil transport
// uses http.DefaultTransport.
func NewRESTStore(baseURL, key string, transport http.RoundTripper) *RESTStore {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &RESTStore{
		endpoint:  strings.TrimRight(baseURL, "/") + "/rest/v1",
		key:       key,
		function:  DefaultRPCFunction,
		transport: transport,
	}
}

type incrementRequest struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	Day        string `json:"day"`
}

// rpcError is the body PostgREST sends with a failed call.
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

// Increment calls the RPC function; any non-2xx status is an error.
func (s *RESTStore) Increment(ctx context.Context, table, column, day string) error {
	if !validIdentifier(table) || !validIdentifier(column) {
		return ErrInvalidIdentifier
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, restTimeout)
		defer cancel()
	}

	// postgrest.Client keeps the last error on the client, so each call gets its own.
	client := postgrest.NewClient(s.endpoint, "public", map[string]string{
		"apikey":        s.key,
		"Authorization": "Bearer " + s.key,
	})
	if client.ClientError != nil {
		return fmt.Errorf("create postgrest client: %w", client.ClientError)
	}
	rt := &contextTransport{ctx: ctx, base: s.transport}
	client.Transport.Parent = rt

	body := client.Rpc(s.function, "", incrementRequest{TableName: table, ColumnName: column, Day: day})
	if client.ClientError != nil {
		return fmt.Errorf("increment request failed: %w", client.ClientError)
	}
	if rt.status < 200 || rt.status >= 300 {
		var rerr rpcError
		if json.Unmarshal([]byte(body), &rerr) == nil && rerr.Message != "" {
			return fmt.Errorf("increment request returned %d: %s (%s)", rt.status, rerr.Message, rerr.Code)
		}
		if len(body) > 512 {
			body = body[:512]
		}
		return fmt.Errorf("increment request returned %d: %s", rt.status, strings.TrimSpace(body))
	}
	return nil
}

// Close is a no-op; clients are created per call.
func (s *RESTStore) Close() error { return nil }

// contextTransport binds requests to ctx and remembers the response status,
// which postgrest.Client.Rpc does not report.
type contextTransport struct {
	ctx    context.Context
	base   http.RoundTripper
	status int
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	t.status = resp.StatusCode
	return resp, nil
}
