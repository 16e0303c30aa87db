// Command chatcli is a terminal client for the line chat server.
//
// Plain input is broadcast. "/w bob,carol text" sends a directed message,
// "/quit" disconnects.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gookit/color"

	"github.com/Tyrowin/linechat/internal/protocol"
)

var (
	systemStyle = color.New(color.FgYellow)
	directStyle = color.New(color.FgMagenta, color.OpBold)
	errorStyle  = color.New(color.FgRed)
	listStyle   = color.New(color.FgCyan)
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:9001", "chat server address")
	name := flag.String("name", "", "handle to submit automatically")
	colours := flag.Bool("colours", true, "colorize output")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", *addr, err)
	}
	defer conn.Close()

	c := &client{conn: conn, out: os.Stdout, colours: *colours, name: *name}

	done := make(chan error, 1)
	go func() { done <- c.readServer(conn) }()
	go c.readInput(os.Stdin)

	return <-done
}

type client struct {
	conn    net.Conn
	out     io.Writer
	colours bool

	name         string
	nameSent     atomic.Bool
	awaitingName atomic.Bool
}

// readServer prints every server line until the connection ends.
func (c *client) readServer(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == protocol.CmdSubmitName:
			if c.name != "" && !c.nameSent.Swap(true) {
				c.send(c.name)
				continue
			}
			c.awaitingName.Store(true)
			fmt.Fprint(c.out, "Enter a handle: ")
		case line == protocol.CmdForceExit:
			fmt.Fprintln(c.out, c.render(errorStyle, "Disconnected by server."))
			return nil
		case line == protocol.CmdNameAccepted:
			c.awaitingName.Store(false)
			fmt.Fprintln(c.out, c.render(systemStyle, "Joined the chat."))
		default:
			fmt.Fprintln(c.out, c.format(line))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// readInput forwards stdin to the server until EOF or /quit.
func (c *client) readInput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := scanner.Text()
		if c.awaitingName.Load() {
			c.send(text)
			continue
		}
		line, quit := encodeInput(text)
		if quit {
			break
		}
		if line != "" {
			c.send(line)
		}
	}
	_ = c.conn.Close()
}

func (c *client) send(line string) {
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		fmt.Fprintln(c.out, c.render(errorStyle, "send failed: "+err.Error()))
	}
}

// format colorizes a server line by its command prefix.
func (c *client) format(line string) string {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case protocol.CmdUserList:
		return c.render(listStyle, "Online: "+strings.ReplaceAll(rest, ",", ", "))
	case protocol.CmdError:
		return c.render(errorStyle, rest)
	case protocol.CmdMessage:
		sender, _, _ := strings.Cut(rest, ":")
		switch {
		case sender == protocol.ServerSender:
			return c.render(systemStyle, rest)
		case strings.Contains(sender, ">>"):
			return c.render(directStyle, rest)
		}
		return rest
	}
	return line
}

func (c *client) render(style color.Style, text string) string {
	if !c.colours {
		return text
	}
	return style.Render(text)
}

// encodeInput turns what the user typed into a protocol line.
func encodeInput(text string) (line string, quit bool) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "", false
	case text == "/quit":
		return "", true
	case strings.HasPrefix(text, "/w "):
		recipients, body, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(text, "/w ")), " ")
		if !ok {
			return "", false
		}
		return protocol.CmdP2P + " " + recipients + ":" + body, false
	}
	return protocol.CmdBroadcast + " " + text, false
}
