package host

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Request operations.
const (
	OpExecute  = "execute"
	OpCommands = "commands"
)

// Request is one bridge call. Each connection carries exactly one request.
type Request struct {
	Op      string `json:"op"`
	Command string `json:"command,omitempty"`
	Args    []any  `json:"args,omitempty"`
}

// Response answers a Request.
type Response struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

// Server exposes a Commander on a unix socket. The IDE side of the bridge
// runs one of these; chatauto connects with a Client.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Commander
}

// NewServer listens on socketPath, replacing a stale socket file.
func NewServer(socketPath string, handler Commander) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	if err := os.Chmod(socketPath, 0700); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		listener:   listener,
		handler:    handler,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.socketPath
}

// Serve accepts connections until the server is stopped or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("Bridge accept failed", "err", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() error {
	err := s.listener.Close()
	os.Remove(s.socketPath)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(bufio.NewReader(conn))
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		encoder.Encode(Response{Error: err.Error()})
		return
	}
	encoder.Encode(s.dispatch(ctx, req))
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	if s.handler == nil {
		return Response{Error: "no handler"}
	}
	switch req.Op {
	case OpExecute:
		if req.Command == "" {
			return Response{Error: "missing command"}
		}
		if err := s.handler.Execute(ctx, req.Command, req.Args...); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case OpCommands:
		cmds, err := s.handler.Commands(ctx)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true, Commands: cmds}
	default:
		return Response{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

// Client is a Commander backed by a bridge socket.
type Client struct {
	socketPath string
}

// NewClient returns a client for the bridge at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Execute implements Commander.
func (c *Client) Execute(ctx context.Context, command string, args ...any) error {
	resp, err := c.call(ctx, Request{Op: OpExecute, Command: command, Args: args})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s: %s", command, resp.Error)
	}
	return nil
}

// Commands implements Commander.
func (c *Client) Commands(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, Request{Op: OpCommands})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	return resp.Commands, nil
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return Response{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(DefaultTimeout))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("receive: %w", err)
	}
	return resp, nil
}
