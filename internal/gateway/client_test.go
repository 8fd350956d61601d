package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mdmestre/enroller/internal/session"
)

// fakeGateway serves the gateway API from memory.
type fakeGateway struct {
	mu       sync.Mutex
	members  map[string][]string
	messages []messageRequest
	rejected map[string]bool
	link     string
	auth     string

	loggedOut atomic.Bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		members:  map[string][]string{},
		rejected: map[string]bool{},
		link:     "https://chat.example/invite/xyz",
	}
}

func (g *fakeGateway) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			g.mu.Lock()
			g.auth = req.Header.Get("Authorization")
			g.mu.Unlock()
			if g.loggedOut.Load() {
				http.Error(w, "logged out", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"state": "connected"})
	})
	r.Post("/groups/{id}/participants", func(w http.ResponseWriter, req *http.Request) {
		var in addRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		group := chi.URLParam(req, "id")

		type status struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		var out struct {
			Participants []status `json:"participants"`
		}
		g.mu.Lock()
		for _, p := range in.Participants {
			if g.rejected[p] {
				out.Participants = append(out.Participants, status{ID: p, Status: "403"})
				continue
			}
			g.members[group] = append(g.members[group], p)
			out.Participants = append(out.Participants, status{ID: p, Status: "200"})
		}
		g.mu.Unlock()
		writeJSON(w, out)
	})
	r.Get("/groups/{id}/invite", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") == "missing" {
			http.Error(w, "no such group", http.StatusNotFound)
			return
		}
		writeJSON(w, inviteResponse{Link: g.link})
	})
	r.Post("/messages", func(w http.ResponseWriter, req *http.Request) {
		var in messageRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.messages = append(g.messages, in)
		g.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	return r
}

func (g *fakeGateway) membersOf(group string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.members[group]...)
}

func (g *fakeGateway) lastAuth() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.auth
}

func (g *fakeGateway) sent() []messageRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]messageRequest(nil), g.messages...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, g *fakeGateway, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(g.router())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClient_Add(t *testing.T) {
	g := newFakeGateway()
	g.rejected["5511000000002"] = true
	c := newTestClient(t, g, WithToken("secret"))
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "group@g.us", "5511000000001"))
	require.Equal(t, []string{"5511000000001"}, g.membersOf("group@g.us"))
	require.Equal(t, "Bearer secret", g.lastAuth())

	err := c.Add(ctx, "group@g.us", "5511000000002")
	require.ErrorIs(t, err, ErrParticipantRejected)
}

func TestClient_InviteLink(t *testing.T) {
	g := newFakeGateway()
	c := newTestClient(t, g)

	link, err := c.InviteLink(context.Background(), "group@g.us")
	require.NoError(t, err)
	require.Equal(t, "https://chat.example/invite/xyz", link)

	_, err = c.InviteLink(context.Background(), "missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusNotFound, se.Code)
}

func TestClient_Send(t *testing.T) {
	g := newFakeGateway()
	c := newTestClient(t, g)

	require.NoError(t, c.Send(context.Background(), "5511000000001", "join: https://x"))
	require.Equal(t, []messageRequest{{To: "5511000000001", Text: "join: https://x"}}, g.sent())
}

func TestClient_UnauthorizedMeansLoggedOut(t *testing.T) {
	g := newFakeGateway()
	g.loggedOut.Store(true)
	c := newTestClient(t, g)

	_, err := c.Dial(context.Background())
	require.ErrorIs(t, err, session.ErrLoggedOut)

	err = c.Send(context.Background(), "5511000000001", "hi")
	require.ErrorIs(t, err, session.ErrLoggedOut)
}

func TestClient_SessionDropsWhenHealthFails(t *testing.T) {
	g := newFakeGateway()
	c := newTestClient(t, g, WithHeartbeat(5*time.Millisecond))

	sess, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	svc := sess.Services()
	require.NotNil(t, svc.Membership)
	require.NotNil(t, svc.Invites)
	require.NotNil(t, svc.Delivery)

	g.loggedOut.Store(true)
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice the gateway logout")
	}
	require.ErrorIs(t, sess.Err(), session.ErrLoggedOut)
}

func TestClient_CloseEndsSession(t *testing.T) {
	c := newTestClient(t, newFakeGateway(), WithHeartbeat(time.Hour))

	sess, err := c.Dial(context.Background())
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	<-sess.Done()
	require.ErrorIs(t, sess.Err(), session.ErrClosed)
}

func TestNew_ValidatesURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	_, err = New("ftp://gateway")
	require.Error(t, err)
	_, err = New("http://localhost:8080/api")
	require.NoError(t, err)
}
