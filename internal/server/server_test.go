package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/notepid/calcserv/internal/command"
	"github.com/notepid/calcserv/internal/eval"
	"github.com/notepid/calcserv/internal/registry"
	"github.com/notepid/calcserv/internal/store"
	"github.com/notepid/calcserv/internal/user"
)

// memGateway backs the dispatcher with an in-memory user table.
type memGateway struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func (g *memGateway) FetchUserByLogin(_ context.Context, login string) (*user.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[login]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (g *memGateway) InsertNewUser(_ context.Context, login, passwordHash string, role user.Role, balance int64) (*user.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := &user.User{ID: int64(len(g.users) + 1), Login: login, PasswordHash: passwordHash, Balance: balance, Role: role}
	g.users[login] = u
	clone := *u
	return &clone, nil
}

func (g *memGateway) UpdateUserBalance(_ context.Context, userID, balance int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.users {
		if u.ID == userID {
			u.Balance = balance
			return nil
		}
	}
	return store.ErrNotFound
}

func (g *memGateway) InsertCalculationHistory(context.Context, int64, string, string) error {
	return nil
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	hash, err := user.HashPassword("secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	gw := &memGateway{users: map[string]*user.User{
		"alice": {ID: 1, Login: "alice", PasswordHash: hash, Balance: 10, Role: user.RoleUser},
	}}

	d := command.New(gw, registry.New(gw), &eval.Evaluator{}, command.Config{Cost: 1, DefaultBalance: 10}, zerolog.Nop())
	srv := New("127.0.0.1", 0, time.Minute, d, zerolog.Nop())

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()
	t.Cleanup(srv.Close)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if addr := srv.Addr(); addr != "" {
			return srv, addr
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never bound a listener")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// exchange writes one request and reads one response.
func exchange(t *testing.T, conn net.Conn, request string) string {
	t.Helper()
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("write %q: %v", request, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read response to %q: %v", request, err)
	}
	return string(buf[:n])
}

func TestSessionLifecycle(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp := exchange(t, conn, "login alice")
	if !strings.Contains(resp, "Enter the password for alice") {
		t.Fatalf("login response %q", resp)
	}

	resp = exchange(t, conn, "password secret")
	if resp != `User "alice" successfully authenticated` {
		t.Fatalf("password response %q", resp)
	}

	if resp = exchange(t, conn, "calc 2+2"); resp != "4" {
		t.Fatalf("calc response %q, want 4", resp)
	}
	if resp = exchange(t, conn, "balance"); resp != "9" {
		t.Fatalf("balance response %q, want 9", resp)
	}

	// Client errors come back as text on the same connection.
	if resp = exchange(t, conn, "nonsense"); resp != "Error: Invalid command" {
		t.Fatalf("unknown command response %q", resp)
	}

	resp = exchange(t, conn, "exit")
	if !strings.Contains(resp, "logged out successfully") {
		t.Fatalf("exit response %q", resp)
	}

	// After exit the server closes the connection.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("connection still open after exit")
	}
}

func TestDisconnectReleasesSession(t *testing.T) {
	_, addr := startTestServer(t)

	conn1, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	exchange(t, conn1, "login alice")
	exchange(t, conn1, "password secret")
	conn1.Close()

	// A fresh connection may log in without the "another session" notice
	// once the server has cleaned up the dropped one.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn2, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		resp := exchange(t, conn2, "login alice")
		conn2.Close()
		if !strings.Contains(resp, "another session") {
			if !strings.Contains(resp, "Enter the password for alice") {
				t.Fatalf("unexpected login response %q", resp)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("dropped session never released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConcurrentSessionsShareBalance(t *testing.T) {
	_, addr := startTestServer(t)

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return conn
	}

	conn1 := dial()
	defer conn1.Close()
	exchange(t, conn1, "login alice")
	exchange(t, conn1, "password secret")

	conn2 := dial()
	defer conn2.Close()
	resp := exchange(t, conn2, "login alice")
	if !strings.Contains(resp, "You have another session") {
		t.Fatalf("second login response %q", resp)
	}
	exchange(t, conn2, "password secret")

	exchange(t, conn1, "calc 2+2")
	if resp = exchange(t, conn2, "balance"); resp != "9" {
		t.Fatalf("shared balance %q, want 9", resp)
	}
}
