// Package irc implements the IRC messaging channel using the girc library.
// Users talk to the bot in private messages. Button menus become numbered
// lines and a reply with the number presses the button.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lrstanley/girc"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/version"
)

// ChannelID prefixes the user ids of IRC users.
const ChannelID = "irc"

const defaultLineMax = 400

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	// say writes one PRIVMSG line. Tests replace it.
	say func(target, line string) error

	mu      sync.RWMutex
	handler func(ev domain.Event)
	running bool
	lastErr string
	menus   map[string][]domain.Button // nick → buttons of the last menu
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	if cfg.LineMax <= 0 {
		cfg.LineMax = defaultLineMax
	}
	c := &Channel{
		cfg:   cfg,
		log:   log.Sub("irc"),
		menus: make(map[string][]domain.Button),
	}
	c.say = c.privmsg
	return c
}

func (c *Channel) ID() string { return ChannelID }

func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{}
}

func (c *Channel) OnEvent(handler func(ev domain.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: ChannelID,
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

// Start connects to the IRC server and processes messages until ctx is done
// or the connection drops.
func (c *Channel) Start(ctx context.Context) error {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "scoutbot analysis assistant",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	// Connect blocks until the connection ends.
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("scoutbot shutting down")
	}
	c.running = false
	return nil
}

// Send renders action as PRIVMSG lines to nick.
func (c *Channel) Send(_ context.Context, nick string, action domain.Action) error {
	if nick == "" {
		return fmt.Errorf("irc: no target specified")
	}

	switch action.Kind {
	case domain.ActionDeleteMessage:
		// IRC messages cannot be retracted
		return nil
	case domain.ActionSendButtons:
		c.mu.Lock()
		c.menus[strings.ToLower(nick)] = action.FlatButtons()
		c.mu.Unlock()
	}

	lines := render(action, c.cfg.LineMax)
	for _, line := range lines {
		if err := c.say(nick, line); err != nil {
			return err
		}
	}
	c.log.Debug().Str("to", nick).Str("kind", string(action.Kind)).Int("lines", len(lines)).Msg("sent IRC message")
	return nil
}

func (c *Channel) privmsg(target, line string) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}
	client.Cmd.Message(target, line)
	return nil
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		client.Cmd.Join(ch)
	}
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil || e.Source.Name == client.GetNick() {
		return
	}
	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	if e.IsFromChannel() {
		// channels only advertise the bot
		if strings.Contains(strings.ToLower(body), strings.ToLower(client.GetNick())) {
			client.Cmd.Message(e.Params[0], e.Source.Name+": send me a private message to start an analysis.")
		}
		return
	}
	c.receive(e.Source.Name, body)
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// receive decodes a private message and passes it to the handler.
func (c *Channel) receive(nick, body string) {
	c.mu.RLock()
	handler := c.handler
	menu := c.menus[strings.ToLower(nick)]
	c.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(decode(domain.NewUserID(ChannelID, nick), body, menu))
}

// decode turns a line of text into an event. "!cmd" is read as "/cmd". A
// bare number selects a button of the last menu.
func decode(userID, body string, menu []domain.Button) domain.Event {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "!") {
		trimmed = "/" + trimmed[1:]
	}
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(menu) {
		b := menu[n-1]
		return domain.ButtonEvent(userID, b.ID, b.Arg)
	}
	ev := domain.TextEvent(userID, trimmed)
	ev.DisplayName = nickOf(userID)
	return ev
}

func nickOf(userID string) string {
	_, nick, _ := domain.SplitUserID(userID)
	return nick
}

// render turns an action into PRIVMSG lines no longer than maxLen bytes.
func render(a domain.Action, maxLen int) []string {
	var text string
	switch a.Kind {
	case domain.ActionSendButtons:
		var b strings.Builder
		b.WriteString(a.Text)
		for i, btn := range a.FlatButtons() {
			fmt.Fprintf(&b, "\n  %d) %s", i+1, btn.Label)
		}
		b.WriteString("\nReply with a number.")
		text = b.String()
	case domain.ActionSendDocument:
		text = renderDocument(a.Document)
	default:
		text = a.Text
	}
	return splitMessage(text, maxLen)
}

func renderDocument(doc *domain.Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	if doc.Caption != "" {
		b.WriteString(doc.Caption + "\n")
	}
	fmt.Fprintf(&b, "----- %s (%d bytes) -----\n", doc.Filename, len(doc.Data))
	if utf8.Valid(doc.Data) {
		b.Write(doc.Data)
	} else {
		b.WriteString("[binary content not shown]")
	}
	fmt.Fprintf(&b, "\n----- end of %s -----", doc.Filename)
	return b.String()
}

// splitMessage breaks text into chunks suitable for IRC. Each line becomes
// at least one chunk because PRIVMSG cannot carry newlines; empty lines are
// sent as a single space. Long lines are split at rune boundaries.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line == "" {
			chunks = append(chunks, " ")
			continue
		}
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		chunks = append(chunks, line)
	}
	return chunks
}
