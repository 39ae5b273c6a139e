package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sawmapp/claspsync/internal/chat"
	"github.com/sawmapp/claspsync/internal/message"
)

type chatLine struct {
	sender    string
	body      string
	sentAt    string
	isHistory bool
	isMine    bool
	isSystem  bool
}

type chatModel struct {
	ctrl        *chat.Controller
	room        string
	displayName string

	// events carries controller callbacks onto the update loop.
	events chan tea.Msg

	lines    []chatLine
	seenIDs  map[string]struct{}
	online   int
	typing   []string
	joined   bool
	viewport viewport.Model
	input    textinput.Model
	errMsg   string
	width    int
	height   int
}

type chatEventMsg struct {
	msg        message.Message
	historical bool
}

type presenceEventMsg int

type typingEventMsg []string

type joinedMsg struct{ err error }

func newChatModel(ctrl *chat.Controller, room, displayName string) chatModel {
	input := textinput.New()
	input.Placeholder = "type a message..."
	input.CharLimit = 4096
	input.Width = 60
	input.Focus()

	return chatModel{
		ctrl:        ctrl,
		room:        room,
		displayName: displayName,
		events:      make(chan tea.Msg, 64),
		seenIDs:     make(map[string]struct{}),
		viewport:    viewport.New(80, 20),
		input:       input,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.joinRoom(),
		m.waitForEvent(),
	)
}

func (m chatModel) joinRoom() tea.Cmd {
	ctrl := m.ctrl
	room := m.room
	events := m.events
	name := m.displayName
	return func() tea.Msg {
		err := ctrl.Connect(context.Background(), room, func(msg message.Message, historical bool) {
			select {
			case events <- chatEventMsg{msg: msg, historical: historical}:
			default:
			}
		}, chat.Options{
			DisplayName: name,
			OnPresence: func(count int) {
				select {
				case events <- presenceEventMsg(count):
				default:
				}
			},
			OnTyping: func(names []string) {
				select {
				case events <- typingEventMsg(names):
				default:
				}
			},
		})
		return joinedMsg{err: err}
	}
}

func (m chatModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = clampMin(msg.Width-4, 10)
		m.viewport.Height = clampMin(msg.Height-6, 1)
		m.input.Width = clampMin(msg.Width-8, 20)
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q", "esc":
			m.ctrl.Disconnect()
			return m, tea.Quit

		case "enter":
			body := strings.TrimSpace(m.input.Value())
			if body == "" {
				return m, nil
			}
			if !m.ctrl.Send(body, "") {
				m.errMsg = "not connected, message not sent"
				return m, nil
			}
			m.errMsg = ""
			m.input.Reset()
			return m, nil

		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			if msg.Type == tea.KeyRunes || msg.Type == tea.KeyBackspace || msg.Type == tea.KeySpace {
				m.ctrl.StartTyping()
			}
			return m, cmd
		}

	case joinedMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		} else {
			m.joined = true
		}
		return m, nil

	case chatEventMsg:
		m.appendMessage(msg.msg, msg.historical)
		return m, m.waitForEvent()

	case presenceEventMsg:
		m.online = int(msg)
		return m, m.waitForEvent()

	case typingEventMsg:
		m.typing = []string(msg)
		return m, m.waitForEvent()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) appendMessage(msg message.Message, historical bool) {
	if _, ok := m.seenIDs[msg.ID]; ok {
		return
	}
	m.seenIDs[msg.ID] = struct{}{}
	m.lines = append(m.lines, chatLine{
		sender:    msg.Sender,
		body:      msg.Content,
		sentAt:    msg.SentAt().Local().Format("15:04"),
		isHistory: historical,
		isMine:    msg.ClientID == m.ctrl.ClientID(),
	})
	m.refreshViewport()
}

func (m *chatModel) refreshViewport() {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(m.renderLine(line))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) renderLine(line chatLine) string {
	if line.isSystem {
		return helpStyle.Render("  " + line.body)
	}
	prefix := fmt.Sprintf("[%s] %s: ", line.sentAt, line.sender)
	text := prefix + line.body
	switch {
	case line.isHistory:
		return historyMsgStyle.Render(text)
	case line.isMine:
		return sentMsgStyle.Render(text)
	default:
		return recvMsgStyle.Render(text)
	}
}

func (m chatModel) statusLine() string {
	var parts []string
	if m.ctrl.IsConnected() {
		parts = append(parts, connectedStyle.Render("online"))
		parts = append(parts, labelStyle.Render(fmt.Sprintf("%d here", m.online)))
	} else {
		parts = append(parts, disconnectedStyle.Render("offline"))
	}
	if len(m.typing) > 0 {
		parts = append(parts, typingStyle.Render(typingText(m.typing)))
	}
	if m.errMsg != "" {
		parts = append(parts, errorStyle.Render(m.errMsg))
	}
	return strings.Join(parts, labelStyle.Render(" · "))
}

func typingText(names []string) string {
	switch len(names) {
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return "several people are typing..."
	}
}

func (m chatModel) View() string {
	header := appNameStyle.Render("claspsync") + "  " + headerStyle.Render(m.room)
	return strings.Join([]string{
		header,
		m.statusLine(),
		separator(m.width),
		m.viewport.View(),
		separator(m.width),
		"  " + m.input.View(),
	}, "\n")
}

func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}
