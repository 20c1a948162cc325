package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyOptions holds connection parameters for a Valkey/Redis-compatible
// server.
type ValkeyOptions struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

func (o *ValkeyOptions) setDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 2 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 500 * time.Millisecond
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 500 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 1
	}
}

// Valkey implements Provider against a Valkey server using a minimal RESP
// client. Connections are per-operation; there is no pool to manage.
type Valkey struct {
	opts   ValkeyOptions
	logger *slog.Logger
}

// NewValkey builds a Valkey provider and pings the server so bad addresses or
// credentials fail at startup instead of on the first lookup.
func NewValkey(opts ValkeyOptions, logger *slog.Logger) (*Valkey, error) {
	if opts.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.setDefaults()

	v := &Valkey{opts: opts, logger: logger}
	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := v.ping(ctx); err != nil {
		return nil, fmt.Errorf("valkey ping %s: %w", opts.Addr, err)
	}
	return v, nil
}

// Get fetches bytes by key, returning ErrCacheMiss for absent keys.
func (v *Valkey) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := v.do(ctx, func(c *respConn) error {
		if err := c.send("GET", []byte(key)); err != nil {
			return err
		}
		reply, err := c.receive()
		if err != nil {
			return err
		}
		switch reply.kind {
		case kindNil:
			return ErrCacheMiss
		case kindBulk:
			payload = reply.data
			return nil
		default:
			return fmt.Errorf("unexpected GET reply kind %q", reply.kind)
		}
	})
	return payload, err
}

// Set stores bytes under key. A positive TTL is applied in milliseconds.
func (v *Valkey) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return v.do(ctx, func(c *respConn) error {
		args := setArgs(key, value, ttl, false)
		if err := c.send("SET", args...); err != nil {
			return err
		}
		reply, err := c.receive()
		if err != nil {
			return err
		}
		if reply.kind != kindSimple || string(reply.data) != "OK" {
			return fmt.Errorf("unexpected SET reply: %s", reply.data)
		}
		return nil
	})
}

// SetNX stores the value only when the key is absent, reporting whether the
// write happened. Used as a best-effort leader lock for background mining.
func (v *Valkey) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var acquired bool
	err := v.do(ctx, func(c *respConn) error {
		args := setArgs(key, value, ttl, true)
		if err := c.send("SET", args...); err != nil {
			return err
		}
		reply, err := c.receive()
		if err != nil {
			return err
		}
		switch reply.kind {
		case kindSimple:
			acquired = true
		case kindNil:
			acquired = false
		default:
			return fmt.Errorf("unexpected SETNX reply kind %q", reply.kind)
		}
		return nil
	})
	return acquired, err
}

// Del removes a key.
func (v *Valkey) Del(ctx context.Context, key string) error {
	return v.do(ctx, func(c *respConn) error {
		if err := c.send("DEL", []byte(key)); err != nil {
			return err
		}
		_, err := c.receive()
		return err
	})
}

// Close is a no-op; connections are not pooled.
func (v *Valkey) Close() error { return nil }

func (v *Valkey) ping(ctx context.Context) error {
	return v.do(ctx, func(c *respConn) error {
		if err := c.send("PING"); err != nil {
			return err
		}
		reply, err := c.receive()
		if err != nil {
			return err
		}
		if reply.kind != kindSimple || string(reply.data) != "PONG" {
			return fmt.Errorf("unexpected PING reply: %s", reply.data)
		}
		return nil
	})
}

func setArgs(key string, value []byte, ttl time.Duration, nx bool) [][]byte {
	args := [][]byte{[]byte(key), value}
	if ttl > 0 {
		args = append(args, []byte("PX"), strconv.AppendInt(nil, ttl.Milliseconds(), 10))
	}
	if nx {
		args = append(args, []byte("NX"))
	}
	return args
}

// do runs fn on a fresh connection, retrying timeouts with exponential
// backoff up to MaxRetries attempts.
func (v *Valkey) do(ctx context.Context, fn func(*respConn) error) error {
	var lastErr error
	for attempt := 0; attempt < v.opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := v.once(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == v.opts.MaxRetries-1 {
			return err
		}
		v.logger.Debug("valkey operation retrying", "attempt", attempt+1, "error", err)
		time.Sleep(time.Duration(1<<attempt) * 25 * time.Millisecond)
	}
	return lastErr
}

func (v *Valkey) once(ctx context.Context, fn func(*respConn) error) error {
	conn, err := v.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.close()

	if err := v.handshake(conn); err != nil {
		return err
	}
	return fn(conn)
}

func (v *Valkey) dial(ctx context.Context) (*respConn, error) {
	dialer := net.Dialer{Timeout: dialBudget(ctx, v.opts.DialTimeout)}
	var (
		conn net.Conn
		err  error
	)
	if v.opts.TLS {
		host, _, splitErr := net.SplitHostPort(v.opts.Addr)
		if splitErr != nil {
			host = v.opts.Addr
		}
		conn, err = tls.DialWithDialer(&dialer, "tcp", v.opts.Addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", v.opts.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &respConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		readTimeout:  v.opts.ReadTimeout,
		writeTimeout: v.opts.WriteTimeout,
	}, nil
}

// handshake authenticates and selects the database when configured.
func (v *Valkey) handshake(c *respConn) error {
	if v.opts.Password != "" {
		args := make([][]byte, 0, 2)
		if v.opts.Username != "" {
			args = append(args, []byte(v.opts.Username))
		}
		args = append(args, []byte(v.opts.Password))
		if err := c.send("AUTH", args...); err != nil {
			return err
		}
		reply, err := c.receive()
		if err != nil {
			return err
		}
		if reply.kind != kindSimple || !strings.EqualFold(string(reply.data), "OK") {
			return fmt.Errorf("valkey auth failed: %s", reply.data)
		}
	}
	if v.opts.DB > 0 {
		if err := c.send("SELECT", []byte(strconv.Itoa(v.opts.DB))); err != nil {
			return err
		}
		reply, err := c.receive()
		if err != nil {
			return err
		}
		if reply.kind != kindSimple || !strings.EqualFold(string(reply.data), "OK") {
			return fmt.Errorf("valkey select %d failed: %s", v.opts.DB, reply.data)
		}
	}
	return nil
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func dialBudget(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if d <= 0 || remaining < d {
			return remaining
		}
	}
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

// replyKind enumerates the RESP reply types the provider understands.
type replyKind string

const (
	kindSimple replyKind = "+"
	kindBulk   replyKind = "$"
	kindInt    replyKind = ":"
	kindNil    replyKind = "_"
)

type reply struct {
	kind replyKind
	data []byte
}

// respConn wraps one network connection with RESP framing.
type respConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *respConn) close() {
	_ = c.conn.Close()
}

// send writes one command as a RESP array of bulk strings.
func (c *respConn) send(command string, args ...[]byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	frame := appendBulk(nil, []byte(command))
	for _, arg := range args {
		frame = appendBulk(frame, arg)
	}
	header := append([]byte("*"), strconv.AppendInt(nil, int64(len(args)+1), 10)...)
	header = append(header, '\r', '\n')
	if _, err := c.writer.Write(header); err != nil {
		return err
	}
	if _, err := c.writer.Write(frame); err != nil {
		return err
	}
	return c.writer.Flush()
}

func appendBulk(frame, part []byte) []byte {
	frame = append(frame, '$')
	frame = strconv.AppendInt(frame, int64(len(part)), 10)
	frame = append(frame, '\r', '\n')
	frame = append(frame, part...)
	return append(frame, '\r', '\n')
}

func (c *respConn) receive() (reply, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return reply{}, err
	}
	prefix, err := c.reader.ReadByte()
	if err != nil {
		return reply{}, err
	}
	switch prefix {
	case '+':
		line, err := c.readLine()
		return reply{kind: kindSimple, data: line}, err
	case '-':
		line, err := c.readLine()
		if err != nil {
			return reply{}, err
		}
		return reply{}, errors.New(string(line))
	case ':':
		line, err := c.readLine()
		return reply{kind: kindInt, data: line}, err
	case '$':
		line, err := c.readLine()
		if err != nil {
			return reply{}, err
		}
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return reply{}, err
		}
		if size < 0 {
			return reply{kind: kindNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.reader, buf); err != nil {
			return reply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return reply{}, errors.New("malformed bulk string terminator")
		}
		return reply{kind: kindBulk, data: buf[:size]}, nil
	default:
		return reply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (c *respConn) readLine() ([]byte, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
